// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/marcelocantos/osh/internal/audit"
)

// RunAuditVerify checks the hash chain of the audit log at logPath.
func RunAuditVerify(w io.Writer, logPath string) int {
	n, err := audit.Verify(logPath)
	if err != nil {
		fmt.Fprintf(w, "audit verification FAILED after %d entries: %v\n", n, err)
		return 1
	}
	fmt.Fprintf(w, "audit log integrity verified (%d entries)\n", n)
	return 0
}

// RunAuditTail prints the last n entries of the audit log at logPath.
func RunAuditTail(w io.Writer, logPath string, n int) int {
	entries, err := audit.Tail(logPath, n)
	if err != nil {
		fmt.Fprintf(w, "osh audit: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "no audit entries")
		return 0
	}
	for _, e := range entries {
		data, _ := json.MarshalIndent(e, "", "  ")
		fmt.Fprintf(w, "%s\n", data)
	}
	return 0
}

func newAuditCommand(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the launch audit log",
	}

	verify := &cobra.Command{
		Use:   "verify [path]",
		Short: "Check the audit log's hash chain",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.auditPath(args)
			if err != nil {
				return err
			}
			app.code = RunAuditVerify(cmd.OutOrStdout(), path)
			return nil
		},
	}

	var n int
	tail := &cobra.Command{
		Use:   "tail [path]",
		Short: "Show the most recent audit entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.auditPath(args)
			if err != nil {
				return err
			}
			app.code = RunAuditTail(cmd.OutOrStdout(), path, n)
			return nil
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of entries; 0 shows all")

	cmd.AddCommand(verify, tail)
	return cmd
}

// auditPath is the explicit path argument, or the configured log.
func (a *app) auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Audit.Path, nil
}
