package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/logging"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitValidation = 2
	exitUsage      = 3
	exitBackend    = 4
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return exitFailure
}

type globalOptions struct {
	catalogFile string
	envFile     string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	var g globalOptions

	cmd := &cobra.Command{
		Use:           "importctl",
		Short:         "Inspect and preview person import files from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.envFile != "" {
				if err := godotenv.Load(g.envFile); err != nil {
					return withCode(exitUsage, fmt.Errorf("load %s: %w", g.envFile, err))
				}
			}
			logging.Setup(g.logLevel, "text")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.catalogFile, "catalog", os.Getenv("CATALOG_FILE"), "YAML file with field catalog overrides")
	cmd.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Load environment variables from this file first")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(newAnalyzeCmd(&g))
	cmd.AddCommand(newTemplateCmd(&g))
	cmd.AddCommand(newPreviewCmd(&g))
	return cmd
}

func (g *globalOptions) catalog() (*catalog.Catalog, error) {
	cat, err := catalog.LoadFile(g.catalogFile)
	if err != nil {
		return nil, withCode(exitUsage, err)
	}
	return cat, nil
}

// Execute runs the root command and exits with its code.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitCode(err))
	}
}

func main() {
	Execute()
}
