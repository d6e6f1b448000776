package sqlite

import (
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
)

// Main ingests the rows of a SQLite table or query.
type Main struct {
	ingest.Main `flag:"!embed"`
	DB          string `help:"SQLite database file."`
	Table       string `help:"Table to read."`
	Query       string `help:"Query to read instead of a whole table."`
	JSONColumn  string `help:"Column holding a JSON object whose keys are added to each record."`
}

// NewMain returns a Main with the defaults.
func NewMain() *Main {
	m := &Main{Main: *ingest.NewMain()}
	m.NewSource = func() (ldk.Source, error) {
		var opts []Option
		if m.Query != "" {
			opts = append(opts, WithQuery(m.Query))
		}
		if m.JSONColumn != "" {
			opts = append(opts, WithJSONColumn(m.JSONColumn))
		}
		src, err := NewSource(m.DB, m.Table, opts...)
		if err != nil {
			return nil, err
		}
		if n, ok := src.Count(); ok {
			m.Log().Printf("reading %d rows from %s", n, m.DB)
		}
		return src, nil
	}
	return m
}
