package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"geovisor.org/internal/auth"
)

func newHashPasswordCmd(e env) *cobra.Command {
	var (
		flags    dbFlags
		password string
		rounds   int
		userID   int64
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Produce a PBKDF2-SHA256 digest, optionally storing it for a user",
		Long: `Hash a password with the scheme the API verifies at login.

Accounts whose stored digest predates the scheme cannot log in until it is
replaced. The password is read from --password or the first line of stdin.

Examples:
  # Print a digest
  echo 'n3w-secret' | geovisorctl hash-password

  # Replace the digest of user 12
  geovisorctl hash-password --user-id 12 --password 'n3w-secret'
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("password is required (--password or stdin)")
				}
				password = strings.TrimRight(line, "\r\n")
			}
			digest, err := auth.PBKDF2Hasher{Rounds: rounds}.Hash(password)
			if err != nil {
				return err
			}
			if userID <= 0 {
				fmt.Fprintln(cmd.OutOrStdout(), digest)
				return nil
			}

			db, err := e.open(&flags)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.SetPasswordHash(cmd.Context(), userID, digest); err != nil {
				if errors.Is(err, auth.ErrNotFound) {
					return fmt.Errorf("user %d not found", userID)
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password updated for user %d\n", userID)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&password, "password", "", "plain text password; read from stdin when empty")
	cmd.Flags().IntVar(&rounds, "rounds", auth.DefaultPBKDF2Rounds, "PBKDF2 iteration count")
	cmd.Flags().Int64Var(&userID, "user-id", 0, "store the digest for this id_usuario instead of printing it")
	return cmd
}
