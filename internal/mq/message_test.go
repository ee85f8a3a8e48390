package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOrderMessage(t *testing.T) {
	body, err := EncodeOrderMessage("3f1c")
	require.NoError(t, err)
	assert.JSONEq(t, `{"order_id":"3f1c","v":1}`, string(body))
}

func TestDecodeOrderMessage(t *testing.T) {
	msg, err := DecodeOrderMessage([]byte(`{"order_id":"abc","v":1}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", msg.OrderID)
	assert.Equal(t, 1, msg.Version)

	// Без версии и с лишними полями.
	msg, err = DecodeOrderMessage([]byte(`{"order_id":"abc","extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, MessageVersion, msg.Version)
}

func TestDecodeOrderMessage_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":      `not json`,
		"missing id":    `{}`,
		"empty id":      `{"order_id":""}`,
		"blank id":      `{"order_id":"   "}`,
		"wrong type":    `{"order_id":42}`,
		"empty body":    ``,
		"array instead": `[]`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeOrderMessage([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}
