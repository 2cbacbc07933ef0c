package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pidgate/internal/proof"
	"pidgate/pkg/platform/httputil"
)

const verifyTimeout = 15 * time.Second

type verifyResponse struct {
	Success bool                `json:"success"`
	Data    proof.Result        `json:"data"`
	Error   *httputil.ErrorBody `json:"error"`
}

func newVerifyProofCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify-proof FILE",
		Short: "Submit a proof envelope to a pidgate server for verification",
		Long:  "verify-proof reads a proof envelope ({proofType, proof, publicSignals}) from FILE, or stdin when FILE is -, and posts it to /proofs/verify.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			var env proof.Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("parse proof envelope: %w", err)
			}
			if _, err := env.Open(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), verifyTimeout)
			defer cancel()
			result, err := submit(ctx, opts.server, env)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := writeJSON(out, result); err != nil {
					return err
				}
			} else {
				printResult(out, env.ProofType, result)
			}
			if !result.Valid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "pidgate base URL")
	return cmd
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}

func submit(ctx context.Context, server string, env proof.Envelope) (proof.Result, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return proof.Result{}, err
	}
	url := strings.TrimRight(server, "/") + "/proofs/verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return proof.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return proof.Result{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	var decoded verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return proof.Result{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !decoded.Success {
		if decoded.Error != nil {
			return proof.Result{}, fmt.Errorf("server rejected request: %s: %s", decoded.Error.Code, decoded.Error.Message)
		}
		return proof.Result{}, fmt.Errorf("server rejected request with status %d", resp.StatusCode)
	}
	return decoded.Data, nil
}

func printResult(w io.Writer, kind proof.Kind, r proof.Result) {
	if r.Valid {
		color.New(color.FgGreen, color.Bold).Fprint(w, "VALID")
	} else {
		color.New(color.FgRed, color.Bold).Fprintf(w, "INVALID (%s)", r.Reason)
	}
	fmt.Fprintf(w, " %s proof\n", kind)
	for _, field := range slices.Sorted(maps.Keys(r.RevealedData)) {
		fmt.Fprintf(w, "  %s = %s\n", field, r.RevealedData[field])
	}
}
