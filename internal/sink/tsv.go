package sink

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dre-etl/internal/parser"
)

var Header = []string{"diploma", "text"}

// TSV appends passages to a tab separated file. Existing content is never rewritten, the
// header is only written when the file is new or empty.
type TSV struct {
	path string
	out  io.WriteCloser
	buf  bytes.Buffer
	rows int
}

func OpenTSV(path string) (*TSV, error) {
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat output: %w", err)
	}

	s, err := newTSV(path, file, info.Size() == 0)
	if err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func newTSV(path string, out io.WriteCloser, writeHeader bool) (*TSV, error) {
	s := &TSV{path: path, out: out}
	if writeHeader {
		if err := s.write([][]string{Header}); err != nil {
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, nil
}

// write encodes records in memory and hands them to the file in a single write.
func (s *TSV) write(records [][]string) error {
	s.buf.Reset()
	writer := csv.NewWriter(&s.buf)
	writer.Comma = '\t'
	err := writer.WriteAll(records)
	if err != nil {
		return err
	}
	_, err = s.out.Write(s.buf.Bytes())
	return err
}

func (s *TSV) Path() string {
	return s.path
}

// Rows is the amount of passage rows appended through this sink.
func (s *TSV) Rows() int {
	return s.rows
}

// Append writes one row per passage tagged with the diploma code. The rows of a diploma are
// written with a single write call, a failed Append leaves none of them behind.
func (s *TSV) Append(code string, passages []parser.Passage) error {
	records := make([][]string, len(passages))
	for i, p := range passages {
		records[i] = []string{code, p.Text}
	}
	err := s.write(records)
	if err != nil {
		return fmt.Errorf("write passages of %q: %w", code, err)
	}
	s.rows += len(passages)
	return nil
}

func (s *TSV) Close() error {
	return s.out.Close()
}
