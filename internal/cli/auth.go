package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().Register(email, password)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(status.Status)
			out.Print([]string{"STATUS"}, [][]string{{status.Status}}, status)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password, 5-20 letters and digits (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}

func newLoginCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Get an access token",
		Long:  "Get an access token. Export it as ORDERS_TOKEN or pass with --token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := clientFn().Login(email, password)
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Logged in as %s", email))
			out.Print([]string{"ACCESS_TOKEN", "TYPE"}, [][]string{{token.AccessToken, token.TokenType}}, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (required)")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}
