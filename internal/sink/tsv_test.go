package sink

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dre-etl/internal/parser"

	"github.com/stretchr/testify/require"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = '\t'
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.tsv")

	sink, err := OpenTSV(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append("Decreto-Lei n.º 10/2024", []parser.Passage{
		{Index: 0, Text: "Artigo 1.º"},
		{Index: 1, Text: "O presente decreto-lei estabelece o regime."},
	}))
	require.NoError(t, sink.Append("Lei n.º 7/2009", []parser.Passage{
		{Index: 0, Text: "Código do Trabalho"},
	}))
	require.Equal(t, 3, sink.Rows())
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	require.Equal(t, []string{
		"diploma\ttext",
		"Decreto-Lei n.º 10/2024\tArtigo 1.º",
		"Decreto-Lei n.º 10/2024\tO presente decreto-lei estabelece o regime.",
		"Lei n.º 7/2009\tCódigo do Trabalho",
	}, lines)
}

func TestAppendToExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "corpus.tsv")

	sink, err := OpenTSV(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append("Lei n.º 7/2009", []parser.Passage{{Text: "primeira"}}))
	require.NoError(t, sink.Close())

	sink, err = OpenTSV(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append("Lei n.º 8/2009", []parser.Passage{{Text: "segunda"}}))
	require.NoError(t, sink.Close())

	require.Equal(t, [][]string{
		{"diploma", "text"},
		{"Lei n.º 7/2009", "primeira"},
		{"Lei n.º 8/2009", "segunda"},
	}, readRows(t, path))
}

func TestHeaderOnEmptyExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.tsv")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	sink, err := OpenTSV(path)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	require.Equal(t, [][]string{{"diploma", "text"}}, readRows(t, path))
}

func TestAppendQuotesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.tsv")

	sink, err := OpenTSV(path)
	require.NoError(t, err)
	require.NoError(t, sink.Append("Lei n.º 7/2009", []parser.Passage{{Text: `o "Código"`}}))
	require.NoError(t, sink.Close())

	rows := readRows(t, path)
	require.Equal(t, []string{"Lei n.º 7/2009", `o "Código"`}, rows[1])
}

// limitedFile accepts writes until limit bytes were written, a write that would go past it
// is rejected whole.
type limitedFile struct {
	bytes.Buffer
	limit int
}

func (f *limitedFile) Write(p []byte) (int, error) {
	if f.Len()+len(p) > f.limit {
		return 0, errors.New("no space left on device")
	}
	return f.Buffer.Write(p)
}

func (f *limitedFile) Close() error {
	return nil
}

func TestAppendFailureLeavesNoPartialDiploma(t *testing.T) {
	file := &limitedFile{limit: 8192}
	sink, err := newTSV("corpus.tsv", file, true)
	require.NoError(t, err)
	require.NoError(t, sink.Append("Lei n.º 7/2009", []parser.Passage{{Text: "Código do Trabalho"}}))
	before := file.String()

	var long []parser.Passage
	for i := 0; i < 200; i++ {
		long = append(long, parser.Passage{Index: i, Text: strings.Repeat("artigo ", 10)})
	}
	err = sink.Append("Decreto-Lei n.º 10/2024", long)
	require.ErrorContains(t, err, "no space left on device")

	require.Equal(t, before, file.String())
	require.Equal(t, "diploma\ttext\nLei n.º 7/2009\tCódigo do Trabalho\n", file.String())
	require.Equal(t, 1, sink.Rows())
}
