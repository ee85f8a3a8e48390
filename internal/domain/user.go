package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// Ошибки валидации пользователя.
var (
	ErrInvalidEmail    = errors.New("invalid email")
	ErrInvalidPassword = errors.New("invalid password")
)

const (
	passwordMinLen = 5
	passwordMaxLen = 20
)

// User — зарегистрированный пользователь.
type User struct {
	// ID — автоинкрементный идентификатор, попадает в sub JWT.
	ID int64 `json:"id"`

	// Email — уникальный адрес в нижнем регистре.
	Email string `json:"email"`

	// HashedPassword — argon2id-хэш в PHC-формате.
	HashedPassword string `json:"-"`
}

// NormalizeEmail проверяет адрес и приводит к нижнему регистру.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return strings.ToLower(email), nil
}

// ValidatePassword: 5–20 символов, только латинские буквы и цифры.
func ValidatePassword(password string) error {
	if len(password) < passwordMinLen || len(password) > passwordMaxLen {
		return fmt.Errorf("%w: length must be %d-%d", ErrInvalidPassword, passwordMinLen, passwordMaxLen)
	}
	for _, r := range password {
		isDigit := r >= '0' && r <= '9'
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isDigit && !isLetter {
			return fmt.Errorf("%w: only letters and digits allowed", ErrInvalidPassword)
		}
	}
	return nil
}
