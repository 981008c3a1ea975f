// Package export turns classified compound metrics into CSV files and hands
// them to one or more sinks.
package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexcodex/attackmetrics/sonar"
	"github.com/lexcodex/attackmetrics/taxonomy"
)

// Source yields the component tree of a project.
type Source interface {
	ComponentTree(ctx context.Context, project string, metricKeys []string) ([]sonar.Component, error)
}

// FileReport describes one written file.
type FileReport struct {
	Kind     taxonomy.Kind
	Name     string
	Rows     int
	Bytes    int
	Checksum uint64
}

// Report summarises an export run.
type Report struct {
	Project    string
	Fetched    int
	Files      []FileReport
	Locations  []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Exporter runs fetch, classify, sort and write once.
type Exporter struct {
	Source  Source
	Sinks   []Sink
	Project string
	Metrics []string

	// OnFetched is called with the component count before anything is written.
	OnFetched func(total int)
	Now       func() time.Time
}

// Run executes the pipeline. Nothing is written when the fetch fails. Sinks
// receive the complete file set one after another in the order given, so a
// failing later sink leaves every file of the earlier sinks in place.
func (e *Exporter) Run(ctx context.Context) (*Report, error) {
	if e.Source == nil {
		return nil, errors.New("export source required")
	}
	if len(e.Sinks) == 0 {
		return nil, errors.New("at least one sink required")
	}
	metrics := e.Metrics
	if len(metrics) == 0 {
		metrics = taxonomy.DefaultMetrics
	}
	report := &Report{Project: e.Project, StartedAt: e.now()}

	components, err := e.Source.ComponentTree(ctx, e.Project, metrics)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(components)
	if e.OnFetched != nil {
		e.OnFetched(report.Fetched)
	}

	buckets := taxonomy.Classify(components)
	buckets.Sort()

	payloads := make([][]byte, 0, len(taxonomy.Kinds))
	for _, kind := range taxonomy.Kinds {
		file, data, err := encode(kind, buckets[kind])
		if err != nil {
			return nil, err
		}
		report.Files = append(report.Files, file)
		payloads = append(payloads, data)
	}
	for _, sink := range e.Sinks {
		for i, file := range report.Files {
			if err := sink.Put(ctx, file.Name, payloads[i]); err != nil {
				return nil, fmt.Errorf("write %s to %s: %w", file.Name, sink.Location(), err)
			}
		}
		report.Locations = append(report.Locations, sink.Location())
	}
	report.FinishedAt = e.now()
	return report, nil
}

func encode(kind taxonomy.Kind, rows []taxonomy.Row) (FileReport, []byte, error) {
	name := FileName(kind)
	data, err := MarshalCSV(rows)
	if err != nil {
		return FileReport{}, nil, fmt.Errorf("encode %s: %w", name, err)
	}
	sum, err := Checksum(data)
	if err != nil {
		return FileReport{}, nil, fmt.Errorf("checksum %s: %w", name, err)
	}
	return FileReport{Kind: kind, Name: name, Rows: len(rows), Bytes: len(data), Checksum: sum}, data, nil
}

func (e *Exporter) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
