package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remotestorage/internal/server/auth"
	"github.com/spf13/cobra"
)

// newTokenCommand mints a session token for local testing against a server
// started with the same secret.
func newTokenCommand() *cobra.Command {
	var (
		secret   string
		subject  string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token --subject NAME [flags]",
		Short: "Mint a session token signed with the server secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("subject must not be empty")
			}
			token, err := auth.GenerateToken(subject, []byte(secret), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "secretKey", "server secret key")
	cmd.Flags().StringVar(&subject, "subject", "", "session id carried by the token")
	cmd.Flags().DurationVar(&validity, "validity", 24*time.Hour, "token lifetime")
	return cmd
}
