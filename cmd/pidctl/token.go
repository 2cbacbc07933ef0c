package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pidgate/pkg/platform/middleware/auth"
)

func newTokenCmd(opts *options) *cobra.Command {
	var (
		issuer string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token SUBJECT",
		Short: "Mint a bearer token for an address provider or carrier",
		Long: "token signs an HS256 bearer token with PIDGATE_JWT_SIGNING_KEY. " +
			"Use the provider issuer for /addresses and the carrier issuer for /resolve.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("PIDGATE_JWT_SIGNING_KEY")
			if key == "" {
				return errors.New("PIDGATE_JWT_SIGNING_KEY is not set")
			}
			token, err := auth.NewTokenAuthority([]byte(key), issuer).Issue(args[0], ttl, time.Now())
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, map[string]string{"token": token, "issuer": issuer})
			}
			fmt.Fprintln(out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&issuer, "issuer", "pidgate-provider", "token issuer; pidgate-provider for providers, pidgate for carriers")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
