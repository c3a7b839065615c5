package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/server"
)

// NewHashKeyCommand creates the hash-key command
func NewHashKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key [api-key]",
		Short: "Hash an API key for server.api_key_hashes",
		Long: `Print the bcrypt hash of an API key. Add the hash to server.api_key_hashes
so the HTTP server accepts the key in the X-API-Key header.

Without an argument the key is read from an interactive prompt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				prompt := &survey.Password{
					Message: "API key:",
					Help:    "The key is not echoed and is never stored",
				}
				if err := survey.AskOne(prompt, &key, survey.WithValidator(survey.Required)); err != nil {
					return err
				}
			}

			hash, err := server.HashAPIKey(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
