package csv

import (
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
	"github.com/pkg/errors"
)

// Main ingests one or more CSV files, local or at any URL afs can open.
type Main struct {
	ingest.Main     `flag:"!embed"`
	Files           []string `help:"CSV files to read, local paths or URLs."`
	MaxRetries      int      `help:"Number of times to retry a file which fails part way."`
	ReadConcurrency int      `help:"Number of files read at once."`
	Delimiter       string   `help:"Field delimiter, a single character."`
}

// NewMain returns a Main with the defaults.
func NewMain() *Main {
	m := &Main{
		Main:            *ingest.NewMain(),
		MaxRetries:      3,
		ReadConcurrency: 1,
		Delimiter:       ",",
	}
	m.NewSource = func() (ldk.Source, error) {
		if len(m.Files) == 0 {
			return nil, errors.New("no csv files given")
		}
		comma := []rune(m.Delimiter)
		if len(comma) != 1 {
			return nil, errors.Errorf("delimiter must be a single character, got '%s'", m.Delimiter)
		}
		return NewSource(
			WithURLs(m.Files),
			WithMaxRetries(m.MaxRetries),
			WithConcurrency(m.ReadConcurrency),
			WithComma(comma[0]),
			WithLogger(m.Log()),
		), nil
	}
	return m
}
