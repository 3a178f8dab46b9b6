// Package sink persists extracted agent batches.
package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"agent-crawler/models"
)

// JSONFile keeps the destination as a single JSON array holding every record
// appended so far, in call order. Each Append rewrites the file through a
// temporary file and a rename, so a crash leaves the last complete array.
type JSONFile struct {
	path    string
	records []models.AgentRecord
}

// NewJSONFile opens path. With keep set, records from an existing array at
// path are preserved and new batches follow them.
func NewJSONFile(path string, keep bool) (*JSONFile, error) {
	f := &JSONFile{path: path, records: []models.AgentRecord{}}
	if !keep {
		return f, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.records); err != nil {
		return nil, fmt.Errorf("existing output %s is not a JSON array: %w", path, err)
	}
	return f, nil
}

func (f *JSONFile) Append(ctx context.Context, batch models.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.records = append(f.records, batch.Records...)
	return f.flush()
}

// Len is the number of records in the file.
func (f *JSONFile) Len() int {
	return len(f.records)
}

func (f *JSONFile) flush() error {
	data, err := json.MarshalIndent(f.records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

func (f *JSONFile) Close() error {
	return nil
}

// JSONLines appends one record per line to path.
type JSONLines struct {
	file *os.File
	w    *bufio.Writer
	enc  *json.Encoder
}

func NewJSONLines(path string, keep bool) (*JSONLines, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !keep {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	w := bufio.NewWriter(file)
	return &JSONLines{file: file, w: w, enc: json.NewEncoder(w)}, nil
}

func (l *JSONLines) Append(ctx context.Context, batch models.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, rec := range batch.Records {
		if err := l.enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("failed to write %s: %w", l.file.Name(), err)
	}
	return nil
}

func (l *JSONLines) Close() error {
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}
