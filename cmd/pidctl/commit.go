package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pidgate/internal/commitment"
)

func newCommitCmd(opts *options) *cobra.Command {
	var nonceHex string
	cmd := &cobra.Command{
		Use:   "commit VALUE",
		Short: "Commit to a value and print the opening",
		Long:  "commit prints the commitment with its nonce. Keep the nonce private and share only valueHash.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var nonce []byte
			if nonceHex != "" {
				var err error
				if nonce, err = commitment.DecodeNonce(nonceHex); err != nil {
					return err
				}
			}
			c, err := commitment.HashScheme{}.Commit(args[0], nonce)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, c)
			}
			fmt.Fprintf(out, "valueHash %s\nnonce     %s\n", c.ValueHash, c.Nonce)
			return nil
		},
	}
	cmd.Flags().StringVar(&nonceHex, "nonce", "", "hex nonce to reuse instead of a fresh random one")
	return cmd
}
