package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/personimport/internal/backend"
	"github.com/JonMunkholm/personimport/internal/core"
)

type previewOptions struct {
	mappingFile string
	maxRows     int
	backendURL  string
	apiKey      string
	timeout     time.Duration
	autoExclude bool
}

type previewReport struct {
	File      string             `json:"file"`
	Summary   core.ReviewSummary `json:"summary"`
	Excluded  int                `json:"autoExcluded,omitempty"`
	Decisions []core.RowDecision `json:"decisions"`
}

func newPreviewCmd(g *globalOptions) *cobra.Command {
	var opts previewOptions

	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Send the included rows of a file to the backend and print the suggested actions",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.backendURL == "" {
				return withCode(exitUsage, errors.New("--backend-url (or BACKEND_URL) is required"))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd.Context(), cmd, g, args[0], opts)
		},
	}

	addSessionFlags(cmd, &opts.mappingFile, &opts.maxRows)
	cmd.Flags().StringVar(&opts.backendURL, "backend-url", os.Getenv("BACKEND_URL"), "Directory service base URL")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("BACKEND_API_KEY"), "Directory service API key")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", backend.DefaultTimeout, "Backend request timeout")
	cmd.Flags().BoolVar(&opts.autoExclude, "auto-exclude", false, "Exclude all but the first row of each blocking duplicate group")
	return cmd
}

func runPreview(ctx context.Context, cmd *cobra.Command, g *globalOptions, path string, opts previewOptions) error {
	cat, err := g.catalog()
	if err != nil {
		return err
	}
	client, err := backend.New(backend.Config{
		BaseURL: opts.backendURL,
		APIKey:  opts.apiKey,
		Timeout: opts.timeout,
	})
	if err != nil {
		return withCode(exitUsage, err)
	}

	sess, _, err := openSession(path, cat, opts.mappingFile, opts.maxRows)
	if err != nil {
		return err
	}
	if missing := sess.MissingFields(); len(missing) > 0 {
		return withCode(exitValidation, fmt.Errorf("required fields not mapped: %v", missing))
	}
	if err := sess.ConfirmMapping(); err != nil {
		return withCode(exitValidation, err)
	}

	report := previewReport{File: sess.FileName}
	if opts.autoExclude {
		if report.Excluded, err = sess.AutoExclude(); err != nil {
			return err
		}
	}

	decisions, err := sess.RunPreview(ctx, client)
	report.Summary = sess.Summary()
	if err != nil {
		if errors.Is(err, core.ErrBlockingDuplicates) || errors.Is(err, core.ErrNoIncludedRows) || errors.Is(err, core.ErrPreviewTooLarge) {
			_ = writeJSON(cmd.OutOrStdout(), report)
			return withCode(exitValidation, err)
		}
		return withCode(exitBackend, err)
	}

	report.Decisions = decisions
	return writeJSON(cmd.OutOrStdout(), report)
}
