package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lexcodex/attackmetrics/coverage"
	"github.com/lexcodex/attackmetrics/export"
)

func newCoverageCmd() *cobra.Command {
	var reportPath string
	var outputPath string
	var prefix string
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Convert a JaCoCo XML report into a per-class coverage CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(reportPath)
			if err != nil {
				return err
			}
			defer f.Close()
			data, n, err := coverage.Convert(f, prefix)
			if err != nil {
				return err
			}
			sink, err := export.NewDirSink(filepath.Dir(outputPath))
			if err != nil {
				return err
			}
			if err := sink.Put(cmd.Context(), filepath.Base(outputPath), data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Coverage report written to: %s (%d classes)\n", outputPath, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", coverage.DefaultReportPath, "JaCoCo XML report")
	cmd.Flags().StringVarP(&outputPath, "out", "o", coverage.DefaultOutputPath, "CSV destination")
	cmd.Flags().StringVar(&prefix, "prefix", coverage.DefaultPrefix, "Only include packages with this name prefix")
	return cmd
}
