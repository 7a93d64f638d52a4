// Copyright 2026 Marcelo Cantos
// SPDX-License-Identifier: Apache-2.0

// Package cli is osh's command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/marcelocantos/osh/internal/config"
)

type app struct {
	version string
	stdin   *os.File
	stdout  *os.File
	stderr  *os.File

	configPath   string
	command      string
	noJobControl bool

	code int
}

// Execute runs the osh command line with args (excluding the program name)
// and returns the process exit status.
func Execute(version string, args []string, stdin, stdout, stderr *os.File) int {
	a := &app{version: version, stdin: stdin, stdout: stdout, stderr: stderr}
	root := a.newRootCommand()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "osh: %v\n", err)
		return 2
	}
	return a.code
}

func (a *app) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "osh [-c line]",
		Short: "A small job-control shell",
		Long: `osh reads command lines and runs them as pipelines of external programs,
each pipeline in its own process group, with fg/bg/jobs job control.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			opts := Options{
				NoJobControl: a.noJobControl,
			}
			if cmd.Flags().Changed("command") {
				opts.Command = &a.command
			}
			a.code = RunShell(cfg, opts, a.stdin, a.stdout, a.stderr)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.ConfigPath()+")")
	root.Flags().StringVarP(&a.command, "command", "c", "", "run one line and exit with its status")
	root.Flags().BoolVar(&a.noJobControl, "no-job-control", false, "keep jobs in the interpreter's process group")

	root.AddCommand(newAuditCommand(a), a.newVersionCommand())
	return root
}

func (a *app) newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the osh version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "osh %s\n", a.version)
		},
	}
}

func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(afero.NewOsFs(), a.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
