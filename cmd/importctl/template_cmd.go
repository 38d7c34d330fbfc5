package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/personimport/internal/tabular"
)

type templateOptions struct {
	format string
	out    string
}

func newTemplateCmd(g *globalOptions) *cobra.Command {
	var opts templateOptions

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an empty import file with one column per catalog field",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			opts.format = strings.ToLower(strings.TrimSpace(opts.format))
			switch opts.format {
			case "csv", "xlsx":
				return nil
			default:
				return withCode(exitUsage, fmt.Errorf("--format must be csv or xlsx, got %q", opts.format))
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := g.catalog()
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if opts.out != "" && opts.out != "-" {
				f, err := os.Create(opts.out)
				if err != nil {
					return withCode(exitUsage, err)
				}
				defer f.Close()
				w = f
			}

			if opts.format == "xlsx" {
				return tabular.WriteXLSXTemplate(w, cat.Labels())
			}
			return tabular.WriteCSVTemplate(w, cat.Labels())
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "csv", "Template format: csv or xlsx")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file (default stdout)")
	return cmd
}
