// Package pipeline converts the first table of an HTML document to CSV.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/aluiziolira/htmltable2csv/config"
	"github.com/aluiziolira/htmltable2csv/models"
	"github.com/aluiziolira/htmltable2csv/source"
)

// Console lines, one per conversion.
const (
	MsgSuccess     = "Successfully converted HTML table to output_table.csv"
	MsgNoTables    = "No tables found in the file."
	MsgErrorPrefix = "An error occurred: "
)

// Loader fetches the raw source document.
type Loader interface {
	Load(ctx context.Context, location string) (*source.Document, error)
}

// TableParser extracts tables, in document order, from raw HTML.
type TableParser interface {
	Parse(content []byte, contentType string) ([]*models.Table, error)
}

// WriterFactory opens an OutputWriter for the given destination.
type WriterFactory func(path string) (OutputWriter, error)

// Converter runs load, parse, select and write for one document.
type Converter struct {
	cfg       *config.Config
	loader    Loader
	parser    TableParser
	newWriter WriterFactory
	Metrics   *Metrics
}

// NewConverter wires a converter writing CSV. metrics may be nil.
func NewConverter(cfg *config.Config, loader Loader, parser TableParser, metrics *Metrics) *Converter {
	return &Converter{
		cfg:    cfg,
		loader: loader,
		parser: parser,
		newWriter: func(path string) (OutputWriter, error) {
			return NewCSVWriter(path)
		},
		Metrics: metrics,
	}
}

// Convert writes the first table of cfg.InputPath to cfg.OutputPath. A
// document without tables is not an error: the result's outcome is
// OutcomeNoTables and the output path is not touched. Every failure is
// returned as a *ConversionError.
func (c *Converter) Convert(ctx context.Context) (result *models.ConversionResult, err error) {
	result = &models.ConversionResult{
		Outcome:   models.OutcomeError,
		Input:     c.cfg.InputPath,
		Output:    c.cfg.OutputPath,
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
		c.Metrics.Observe(result, err)
	}()

	doc, err := c.loader.Load(ctx, c.cfg.InputPath)
	if err != nil {
		return result, &ConversionError{Stage: StageLoad, Err: err}
	}

	tables, err := c.parser.Parse(doc.Body, doc.ContentType)
	if err != nil {
		return result, &ConversionError{Stage: StageParse, Err: err}
	}
	result.TablesFound = len(tables)
	slog.Debug("parsed document",
		slog.String("input", doc.Location),
		slog.Int("tables", len(tables)),
	)

	if len(tables) == 0 {
		result.Outcome = models.OutcomeNoTables
		return result, nil
	}

	rows, err := c.write(tables[0])
	if err != nil {
		return result, &ConversionError{Stage: StageWrite, Err: err}
	}
	result.RowsWritten = rows
	result.Outcome = models.OutcomeSuccess
	slog.Info("wrote csv",
		slog.String("output", c.cfg.OutputPath),
		slog.Int("columns", tables[0].Width()),
		slog.Int("rows", rows),
	)
	return result, nil
}

func (c *Converter) write(table *models.Table) (int, error) {
	w, err := c.newWriter(c.cfg.OutputPath)
	if err != nil {
		return 0, err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if err := w.Discard(); err != nil {
			slog.Warn("discard pending output", slog.Any("error", err))
		}
	}()

	if err := w.Write(table); err != nil {
		return 0, err
	}
	if err := w.Validate(); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	committed = true
	return len(table.Rows), nil
}

// Report returns the single console line describing a conversion.
func Report(result *models.ConversionResult, err error) string {
	if err != nil {
		return MsgErrorPrefix + err.Error()
	}
	if result != nil && result.Outcome == models.OutcomeNoTables {
		return MsgNoTables
	}
	return MsgSuccess
}
