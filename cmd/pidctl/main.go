package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pidgate/internal/pid"
)

type options struct {
	schemaFile string
	server     string
	jsonOut    bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pidctl",
		Short:         "pidctl encodes, validates and commits to PIDs and checks proofs",
		Long:          "pidctl works with hierarchical address PIDs offline and submits proofs to a pidgate server for verification.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.schemaFile, "schema", "s", "", "YAML schema table to use instead of the built-in one")
	root.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print machine readable JSON")

	root.AddCommand(
		newEncodeCmd(opts),
		newDecodeCmd(opts),
		newValidateCmd(opts),
		newCommitCmd(opts),
		newVerifyProofCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

func (o *options) codec() (*pid.Codec, error) {
	if o.schemaFile == "" {
		return pid.Default(), nil
	}
	table, err := pid.LoadSchemaTable(o.schemaFile)
	if err != nil {
		return nil, err
	}
	return pid.NewCodec(table), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
