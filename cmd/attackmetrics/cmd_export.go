package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/attackmetrics/config"
	"github.com/lexcodex/attackmetrics/export"
	"github.com/lexcodex/attackmetrics/persistence"
	"github.com/lexcodex/attackmetrics/sonar"
)

const exportLong = `Fetch the component tree of the project, keep the rcg/gen<N>/compound_<M>
directories and write their complexity metrics to rcg.csv and pcg.csv.

The API key in use is printed with all but its last four characters masked.
Pass --show-token to print it in full.`

type exportOptions struct {
	server    string
	project   string
	outputDir string
	pageSize  int
	history   string
	upload    string
	showToken bool
}

func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Fetch compound metrics and write rcg.csv and pcg.csv",
		Long:  exportLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts)
		},
	}
	addExportFlags(cmd, opts)
	return cmd
}

func addExportFlags(cmd *cobra.Command, opts *exportOptions) {
	cmd.Flags().StringVar(&opts.server, "server", "", "SonarQube server URL (default from config)")
	cmd.Flags().StringVar(&opts.project, "project", "", "Project key (default from config)")
	cmd.Flags().StringVarP(&opts.outputDir, "out", "o", "", "Output directory (default from config)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", 0, "Components requested per page")
	cmd.Flags().StringVar(&opts.history, "history", "", "SQLite database recording export runs")
	cmd.Flags().StringVar(&opts.upload, "upload", "", "S3-compatible endpoint receiving a copy of the files")
	cmd.Flags().BoolVar(&opts.showToken, "show-token", false, "Print the API key in full instead of only its last four characters")
}

func (o *exportOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.ServerURL = o.server
	}
	if flags.Changed("project") {
		cfg.ProjectKey = o.project
	}
	if flags.Changed("out") {
		cfg.OutputDir = o.outputDir
	}
	if flags.Changed("page-size") {
		cfg.PageSize = o.pageSize
	}
	if flags.Changed("history") {
		cfg.HistoryDB = o.history
	}
	if flags.Changed("upload") {
		cfg.Upload.Endpoint = o.upload
	}
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	token, err := cfg.Token()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	shown := maskToken(token)
	if opts.showToken {
		shown = token
	}
	fmt.Fprintf(out, "Using API key: %s\n", shown)

	client := sonar.NewClient(cfg.ServerURL, token)
	client.PageSize = cfg.PageSize
	client.SetHTTPClient(&http.Client{Timeout: cfg.Timeout})
	client.SetDebugLogging(cfg.Debug)

	sinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	exporter := &export.Exporter{
		Source:  client,
		Sinks:   sinks,
		Project: cfg.ProjectKey,
		Metrics: cfg.Metrics,
		OnFetched: func(total int) {
			fmt.Fprintf(out, "Total components fetched: %d\n", total)
		},
	}
	report, err := exporter.Run(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.HistoryDB != "" {
		if err := recordHistory(cmd, cfg, report); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	fmt.Fprint(out, renderSummary(report))
	fmt.Fprintf(out, "Exported %s to %s\n", fileList(report), cfg.OutputDir)
	return nil
}

func buildSinks(cfg *config.Config) ([]export.Sink, error) {
	dir, err := export.NewDirSink(cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	sinks := []export.Sink{dir}
	if cfg.Upload.Enabled() {
		s3, err := export.NewS3Sink(cfg.S3())
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return sinks, nil
}

func recordHistory(cmd *cobra.Command, cfg *config.Config, report *export.Report) error {
	store, err := persistence.NewSQLiteHistoryStore(cfg.HistoryDB)
	if err != nil {
		return err
	}
	defer store.Close()
	run := &persistence.ExportRun{
		ID:         fmt.Sprintf("export-%d", report.StartedAt.UnixNano()),
		Project:    report.Project,
		Server:     cfg.ServerURL,
		Fetched:    report.Fetched,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	for _, f := range report.Files {
		run.Files = append(run.Files, persistence.ExportFile{
			Name:     f.Name,
			Rows:     f.Rows,
			Bytes:    f.Bytes,
			Checksum: export.FormatChecksum(f.Checksum),
		})
	}
	return store.Record(cmd.Context(), run)
}

func fileList(report *export.Report) string {
	names := make([]string, 0, len(report.Files))
	for _, f := range report.Files {
		names = append(names, f.Name)
	}
	return strings.Join(names, " and ")
}

// maskToken hides all but the last four characters of a credential.
func maskToken(token string) string {
	if len(token) <= 4 {
		return strings.Repeat("*", len(token))
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
