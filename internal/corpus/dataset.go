package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
)

// maxLineSize bounds a single dataset line. Case texts can be long.
const maxLineSize = 16 << 20

// MalformedError describes one dataset line that failed to parse.
type MalformedError struct {
	Line int
	Err  error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *MalformedError) Unwrap() []error { return []error{ErrMalformedRecord, e.Err} }

// LoadStats summarizes a dataset load.
type LoadStats struct {
	Lines   int
	Records int
	Skipped int
}

// ParseRecords lazily parses line-delimited JSON case records from r.
// Malformed lines yield a *MalformedError and parsing continues; a read
// error is yielded once and ends the sequence. Blank lines are ignored.
func ParseRecords(r io.Reader) iter.Seq2[CaseRecord, error] {
	return func(yield func(CaseRecord, error) bool) {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		line := 0
		for sc.Scan() {
			line++
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			var rec CaseRecord
			if err := json.Unmarshal(b, &rec); err != nil {
				if !yield(CaseRecord{}, &MalformedError{Line: line, Err: err}) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(CaseRecord{}, fmt.Errorf("reading dataset after line %d: %w", line, err))
		}
	}
}

// ReadDataset collects every well-formed record from r. Malformed lines are
// logged and counted in the returned stats; only read errors are fatal.
func ReadDataset(r io.Reader) ([]CaseRecord, LoadStats, error) {
	var (
		records []CaseRecord
		stats   LoadStats
	)
	for rec, err := range ParseRecords(r) {
		if err != nil {
			var me *MalformedError
			if !errors.As(err, &me) {
				return nil, stats, err
			}
			stats.Lines++
			stats.Skipped++
			slog.Warn("skipping malformed dataset record", "line", me.Line, "error", me.Err)
			continue
		}
		stats.Lines++
		stats.Records++
		records = append(records, rec)
	}
	if stats.Skipped > 0 {
		slog.Info("dataset loaded with skipped records", "records", stats.Records, "skipped", stats.Skipped)
	}
	return records, stats, nil
}

// LoadDataset reads the dataset file at path.
func LoadDataset(path string) ([]CaseRecord, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, err
	}
	defer f.Close()
	return ReadDataset(f)
}

// WriteDataset writes records to w, one JSON object per line.
func WriteDataset(w io.Writer, records []CaseRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// SaveDataset writes records to path, replacing any existing file.
func SaveDataset(path string, records []CaseRecord) error {
	return writeDatasetFile(path, records, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// AppendDataset appends records to the dataset at path, creating it if needed.
func AppendDataset(path string, records []CaseRecord) error {
	return writeDatasetFile(path, records, os.O_CREATE|os.O_APPEND|os.O_WRONLY)
}

func writeDatasetFile(path string, records []CaseRecord, flag int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating dataset directory: %w", err)
	}
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return err
	}
	if err := WriteDataset(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
