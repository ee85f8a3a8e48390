package cli

import (
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd собирает корневую команду orders.
func NewRootCmd(version string) *cobra.Command {
	var apiURL, token string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "orders",
		Short:         "Orders CLI — order management client",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("ORDERS_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("ORDERS_TOKEN"), "Access token (default $ORDERS_TOKEN)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL, token) }
	outputFn := func() *Output {
		return NewOutput(jsonOutput, rootCmd.OutOrStdout(), rootCmd.ErrOrStderr())
	}

	rootCmd.AddCommand(
		newRegisterCmd(clientFn, outputFn),
		newLoginCmd(clientFn, outputFn),
		NewOrderCmd(clientFn, outputFn),
	)

	return rootCmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
