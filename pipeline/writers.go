package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/htmltable2csv/models"
)

// OutputWriter receives the selected table. Close commits the output;
// Discard abandons it. Exactly one of them must be called.
type OutputWriter interface {
	Write(table *models.Table) error
	Validate() error
	Close() error
	Discard() error
}

// CSVWriter writes a table to a temporary file next to the destination and
// renames it into place on Close, so the destination is either replaced
// completely or left as it was.
type CSVWriter struct {
	path      string
	file      *os.File
	writer    *csv.Writer
	rows      int
	closed    bool
	committed bool
}

// NewCSVWriter prepares a writer whose output will land at filename.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(filepath.Dir(filename), "."+filepath.Base(filename)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	return &CSVWriter{
		path:   filename,
		file:   f,
		writer: csv.NewWriter(f),
	}, nil
}

// Write emits the header row followed by every data row.
func (cw *CSVWriter) Write(table *models.Table) error {
	if table == nil {
		return errors.New("write csv: nil table")
	}
	if err := cw.writer.WriteAll(table.Records()); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	cw.rows += len(table.Rows)
	return nil
}

// Rows returns the number of data rows written, excluding the header.
func (cw *CSVWriter) Rows() int {
	return cw.rows
}

// Validate ensures the pending file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// Close flushes the pending file and moves it over the destination.
func (cw *CSVWriter) Close() error {
	if cw.committed {
		return nil
	}
	if err := cw.closeFile(); err != nil {
		return err
	}
	if err := os.Chmod(cw.file.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod csv file: %w", err)
	}
	if err := os.Rename(cw.file.Name(), cw.path); err != nil {
		return fmt.Errorf("move csv into place: %w", err)
	}
	cw.committed = true
	return nil
}

// Discard removes the pending file. It is a no-op after a successful Close.
func (cw *CSVWriter) Discard() error {
	if cw.committed {
		return nil
	}
	if !cw.closed {
		cw.closed = true
		cw.file.Close()
	}
	if err := os.Remove(cw.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pending csv: %w", err)
	}
	return nil
}

func (cw *CSVWriter) closeFile() error {
	if cw.closed {
		return nil
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	if err := cw.file.Sync(); err != nil {
		return fmt.Errorf("sync csv file: %w", err)
	}
	cw.closed = true
	if err := cw.file.Close(); err != nil {
		return fmt.Errorf("close csv file: %w", err)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
