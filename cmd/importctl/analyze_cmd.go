package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/personimport/internal/catalog"
	"github.com/JonMunkholm/personimport/internal/core"
	"github.com/JonMunkholm/personimport/internal/tabular"
)

type analyzeOptions struct {
	mappingFile string
	maxRows     int
	autoExclude bool
	rows        bool
}

// analyzeReport is what analyze prints.
type analyzeReport struct {
	File       string                `json:"file"`
	Format     tabular.Format        `json:"format"`
	Encoding   string                `json:"encoding,omitempty"`
	Headers    []string              `json:"headers"`
	Mapping    core.Mapping          `json:"mapping"`
	Missing    []catalog.FieldKey    `json:"missing,omitempty"`
	Summary    core.ReviewSummary    `json:"summary"`
	Duplicates []core.DuplicateGroup `json:"duplicates,omitempty"`
	Excluded   int                   `json:"autoExcluded,omitempty"`
	Rows       []core.WorkingRow     `json:"rows,omitempty"`
}

func newAnalyzeCmd(g *globalOptions) *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Decode a file, infer the mapping and report row issues and duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := g.catalog()
			if err != nil {
				return err
			}
			sess, table, err := openSession(args[0], cat, opts.mappingFile, opts.maxRows)
			if err != nil {
				return err
			}

			report := analyzeReport{
				File:     filepath.Base(args[0]),
				Format:   table.Format,
				Encoding: table.Encoding,
				Headers:  sess.Headers(),
				Mapping:  sess.Mapping(),
				Missing:  sess.MissingFields(),
			}
			if len(report.Missing) > 0 {
				if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				return withCode(exitValidation, fmt.Errorf("required fields not mapped: %v", report.Missing))
			}

			if err := sess.ConfirmMapping(); err != nil {
				return withCode(exitValidation, err)
			}
			if opts.autoExclude {
				if report.Excluded, err = sess.AutoExclude(); err != nil {
					return err
				}
			}

			report.Summary = sess.Summary()
			report.Duplicates = sess.DuplicateGroups()
			if opts.rows {
				report.Rows = sess.Rows()
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	addSessionFlags(cmd, &opts.mappingFile, &opts.maxRows)
	cmd.Flags().BoolVar(&opts.autoExclude, "auto-exclude", false, "Exclude all but the first row of each blocking duplicate group")
	cmd.Flags().BoolVar(&opts.rows, "rows", false, "Include every normalized row in the output")
	return cmd
}

func addSessionFlags(cmd *cobra.Command, mappingFile *string, maxRows *int) {
	cmd.Flags().StringVar(mappingFile, "mapping", "", `JSON file with a mapping like {"displayName": "Full Name"} applied over the inferred one`)
	cmd.Flags().IntVar(maxRows, "max-rows", core.DefaultMaxRows, "Reject files with more rows than this")
}

// openSession decodes path into a session in the map phase.
func openSession(path string, cat *catalog.Catalog, mappingFile string, maxRows int) (*core.Session, *tabular.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, withCode(exitUsage, err)
	}
	table, err := tabular.Decode(filepath.Base(path), data)
	if err != nil {
		return nil, nil, withCode(exitValidation, fmt.Errorf("decode %s: %w", path, err))
	}

	var saved core.Mapping
	if mappingFile != "" {
		b, err := os.ReadFile(mappingFile)
		if err != nil {
			return nil, nil, withCode(exitUsage, err)
		}
		if err := json.Unmarshal(b, &saved); err != nil {
			return nil, nil, withCode(exitUsage, fmt.Errorf("parse %s: %w", mappingFile, err))
		}
	}

	sess := core.NewSession(uuid.NewString(), filepath.Base(path), cat, core.SessionOptions{MaxRows: maxRows})
	if err := sess.Load(table, saved); err != nil {
		return nil, nil, withCode(exitValidation, err)
	}
	return sess, table, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}
