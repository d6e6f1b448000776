package json_test

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/ldkit/ldk"
	ldkjson "github.com/ldkit/ldk/json"
	"github.com/ldkit/ldk/test"
)

func drain(t *testing.T, src ldk.Source) (recs []ldk.Record, errs []error) {
	t.Helper()
	for i := 0; i < 100; i++ {
		rec, err := src.Record()
		if err == io.EOF {
			return recs, errs
		} else if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}
	t.Fatal("source never returned io.EOF")
	return nil, nil
}

func TestSource(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
		errs  int
	}{
		{name: "ndjson", input: "{\"a\": 1}\n{\"a\": 2}\n", want: 2},
		{name: "concatenated", input: `{"a": 1}{"a": 2} {"a": 3}`, want: 3},
		{name: "array", input: "  [\n{\"a\": 1},\n{\"a\": 2}\n]\n", want: 2},
		{name: "empty", input: "", want: 0},
		{name: "empty array", input: "[]", want: 0},
		{name: "not an object", input: `{"a": 1} 7 {"a": 2}`, want: 2, errs: 1},
		{name: "malformed", input: `{"a": 1} {"a": `, want: 1, errs: 1},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			recs, errs := drain(t, ldkjson.NewSource(strings.NewReader(tst.input)))
			test.MustBe(t, tst.want, len(recs), "records")
			test.MustBe(t, tst.errs, len(errs), "errors")
		})
	}
}

func TestSourceKeepsNumbers(t *testing.T) {
	src := ldkjson.NewSource(strings.NewReader(`{"PersonID": 98989709912345678, "Name": "EDITH", "Tags": ["a"]}`))
	rec, err := src.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, json.Number("98989709912345678"), rec["PersonID"])
	test.MustBe(t, "EDITH", rec["Name"])
	test.MustBe(t, []interface{}{"a"}, rec["Tags"])
	s, missing, err := ldk.FormatScalar(rec["PersonID"])
	test.ErrNil(t, err, "FormatScalar")
	test.MustBe(t, false, missing)
	test.MustBe(t, "98989709912345678", s)
}

type named struct {
	io.Reader
	name string
}

func (n *named) Close() error                 { return nil }
func (n *named) Name() string                 { return n.name }
func (n *named) Meta() map[string]interface{} { return nil }

type readers []*named

func (r *readers) NextReader() (ldk.NamedReadCloser, error) {
	if len(*r) == 0 {
		return nil, io.EOF
	}
	next := (*r)[0]
	*r = (*r)[1:]
	return next, nil
}

func TestSourceFromRawSource(t *testing.T) {
	rs := &readers{
		{Reader: strings.NewReader(`{"a": 1}`), name: "one"},
		{Reader: strings.NewReader(``), name: "two"},
		{Reader: strings.NewReader(`[{"a": 2}, {"a": 3}]`), name: "three"},
	}
	recs, errs := drain(t, ldkjson.NewSourceFromRawSource(rs))
	test.MustBe(t, 0, len(errs))
	test.MustBe(t, 3, len(recs))
	test.MustBe(t, json.Number("3"), recs[2]["a"])
}
