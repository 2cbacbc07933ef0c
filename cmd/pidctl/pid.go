package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pidgate/internal/pid"
)

// errInvalid signals a failed check whose details were already printed.
var errInvalid = errors.New("validation failed")

func newEncodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encode COUNTRY VALUE...",
		Short: "Join segment values into a PID using the country's schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			country := strings.ToUpper(args[0])
			schema, ok := codec.Schema(country)
			if !ok {
				return fmt.Errorf("unknown country %q", country)
			}
			names := schema.LevelNames()
			values := append([]string{country}, args[1:]...)
			if len(values) != len(names) {
				return fmt.Errorf("%s expects %d values (%s), got %d",
					country, len(names)-1, strings.Join(names[1:], ", "), len(values)-1)
			}
			segments := make([]pid.Segment, len(values))
			for i, v := range values {
				segments[i] = pid.Segment{Level: names[i], Value: v}
			}
			encoded, err := codec.Encode(segments)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"pid": encoded, "segments": segments})
			}
			fmt.Fprintln(cmd.OutOrStdout(), encoded)
			return nil
		},
	}
}

func newDecodeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "decode PID",
		Short: "Split a PID into its typed segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			segments, err := codec.Decode(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return writeJSON(out, segments)
			}
			label := color.New(color.FgCyan)
			for _, s := range segments {
				label.Fprintf(out, "%-14s", s.Level)
				fmt.Fprintln(out, s.Value)
			}
			return nil
		},
	}
}

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PID...",
		Short: "Check PIDs against their country schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			codec, err := opts.codec()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			ok := color.New(color.FgGreen)
			bad := color.New(color.FgRed)
			failed := false
			for _, p := range args {
				if _, err := codec.Decode(p); err != nil {
					failed = true
					bad.Fprintf(out, "MALFORMED ")
					fmt.Fprintf(out, "%s: %v\n", p, err)
					continue
				}
				ok.Fprintf(out, "VALID     ")
				fmt.Fprintln(out, p)
			}
			if failed {
				return errInvalid
			}
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
