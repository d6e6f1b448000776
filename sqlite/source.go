// Package sqlite reads records from a table or query of a SQLite database.
package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// Source streams the rows of a query as records keyed by column name. Only
// the current row is held in memory. NULL columns are left out of the
// record.
type Source struct {
	db    *sql.DB
	query string
	args  []interface{}

	jsonColumn string

	mu   sync.Mutex
	rows *sql.Rows
	cols []string
	vals []interface{}
	ptrs []interface{}
	done bool
}

// Option configures a Source.
type Option func(*Source)

// WithQuery reads the rows of query instead of a whole table.
func WithQuery(query string, args ...interface{}) Option {
	return func(s *Source) {
		s.query = query
		s.args = args
	}
}

// WithJSONColumn decodes column as a JSON object whose keys are merged into
// the record. Columns of the row take precedence.
func WithJSONColumn(column string) Option {
	return func(s *Source) {
		s.jsonColumn = column
	}
}

// NewSource opens the database at path and starts reading table. The table
// name is ignored when WithQuery is given.
func NewSource(path, table string, opts ...Option) (*Source, error) {
	s := &Source{}
	for _, opt := range opts {
		opt(s)
	}
	if s.query == "" {
		if table == "" {
			return nil, errors.New("a table or query is required")
		}
		s.query = "SELECT * FROM " + quoteIdent(table)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening sqlite %s", path)
	}
	s.db = db
	s.rows, err = db.Query(s.query, s.args...)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "querying")
	}
	s.cols, err = s.rows.Columns()
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "getting columns")
	}
	s.vals = make([]interface{}, len(s.cols))
	s.ptrs = make([]interface{}, len(s.cols))
	for i := range s.vals {
		s.ptrs[i] = &s.vals[i]
	}
	return s, nil
}

func quoteIdent(name string) string {
	return `"` + strings.Replace(name, `"`, `""`, -1) + `"`
}

// Record implements ldk.Source.
func (s *Source) Record() (ldk.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, io.EOF
	}
	if !s.rows.Next() {
		s.done = true
		if err := s.rows.Err(); err != nil {
			return nil, errors.Wrap(err, "iterating rows")
		}
		return nil, io.EOF
	}
	if err := s.rows.Scan(s.ptrs...); err != nil {
		return nil, errors.Wrap(err, "scanning row")
	}
	rec := make(ldk.Record, len(s.cols))
	for i, col := range s.cols {
		switch v := s.vals[i].(type) {
		case nil:
		case []byte:
			rec[col] = string(v)
		default:
			rec[col] = v
		}
	}
	if s.jsonColumn == "" {
		return rec, nil
	}
	raw, ok := rec[s.jsonColumn].(string)
	if !ok {
		return rec, nil
	}
	delete(rec, s.jsonColumn)
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]interface{}
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.Wrapf(err, "decoding column %s", s.jsonColumn)
	}
	for k, v := range obj {
		if _, ok := rec[k]; !ok {
			rec[k] = v
		}
	}
	return rec, nil
}

// Count implements ldk.Counter.
func (s *Source) Count() (int64, bool) {
	var n int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM ("+s.query+")", s.args...).Scan(&n)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Close closes the rows and the database.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.rows != nil {
		s.rows.Close()
	}
	return errors.Wrap(s.db.Close(), "closing sqlite")
}
