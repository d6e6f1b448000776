package csv_test

import (
	"io"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/csv"
	"github.com/ldkit/ldk/test"
	"github.com/pkg/errors"
)

func TestCSVSource(t *testing.T) {
	path := test.MustTempFile(t, "data.csv", `blah,bleh,blue
1,asdf,3
2,"qw,er",

,,
`)
	src := csv.NewSource(csv.WithURLs([]string{path}))
	rec, err := src.Record()
	test.ErrNil(t, err, "getting first record")
	test.MustBe(t, ldk.Record{"blah": "1", "bleh": "asdf", "blue": "3"}, rec)

	rec, err = src.Record()
	test.ErrNil(t, err, "getting second record")
	test.MustBe(t, ldk.Record{"blah": "2", "bleh": "qw,er"}, rec, "quoted delimiter, empty cell left out")

	_, err = src.Record()
	test.MustBe(t, io.EOF, err, "blank rows are skipped")
}

func TestCSVSourcePeople(t *testing.T) {
	src := csv.NewSource(csv.WithURLs([]string{"../testdata/people.csv"}))
	var recs []ldk.Record
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		recs = append(recs, rec)
	}
	test.MustBe(t, 4, len(recs))
	test.MustBe(t, "White,Black|Asian", recs[0]["RaceEthnicity"])
	if _, ok := recs[0]["MiddleName"]; ok {
		t.Fatalf("empty MiddleName should be absent: %v", recs[0])
	}
	if _, ok := recs[3]["PersonID"]; ok {
		t.Fatalf("empty PersonID should be absent: %v", recs[3])
	}
}

func TestCSVSourceTabs(t *testing.T) {
	path := test.MustTempFile(t, "data.tsv", "\ufeffa\tb\nx\ty,z\n")
	src := csv.NewSource(csv.WithURLs([]string{path}), csv.WithComma('\t'))
	rec, err := src.Record()
	test.ErrNil(t, err, "Record")
	test.MustBe(t, ldk.Record{"a": "x", "b": "y,z"}, rec)
}

func TestCSVSourceBadHeader(t *testing.T) {
	for _, header := range []string{"a,,c", "a,b,a"} {
		t.Run(header, func(t *testing.T) {
			path := test.MustTempFile(t, "data.csv", header+"\n1,2,3\n")
			src := csv.NewSource(csv.WithURLs([]string{path}))
			_, err := src.Record()
			if err == nil || !strings.Contains(err.Error(), "validating header") {
				t.Fatalf("expected header error, got %v", err)
			}
			_, err = src.Record()
			test.MustBe(t, io.EOF, err)
		})
	}
}

func TestCSVSourceShortRow(t *testing.T) {
	path := test.MustTempFile(t, "data.csv", "a,b,c\n1,2\n4,5,6,7\n")
	src := csv.NewSource(csv.WithURLs([]string{path}))
	_, err := src.Record()
	if err == nil || !strings.Contains(err.Error(), "row 1") {
		t.Fatalf("expected mismatch error for row 1, got %v", err)
	}
	rec, err := src.Record()
	test.ErrNil(t, err, "extra cells are ignored")
	test.MustBe(t, ldk.Record{"a": "4", "b": "5", "c": "6"}, rec)
}

// flaky fails its first read part way through the file.
type flaky struct {
	data  string
	opens int
}

func (f *flaky) String() string { return "flaky" }

func (f *flaky) Open() (io.ReadCloser, error) {
	f.opens++
	if f.opens == 1 {
		return ioutil.NopCloser(io.MultiReader(strings.NewReader(f.data[:14]), errReader{})), nil
	}
	return ioutil.NopCloser(strings.NewReader(f.data)), nil
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestCSVSourceRetry(t *testing.T) {
	f := &flaky{data: "a,b\n1,2\n3,4\n5,6\n"}
	src := csv.NewSource(csv.WithOpenStringers([]csv.OpenStringer{f}))
	var got []string
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		got = append(got, rec["a"].(string))
	}
	test.MustBe(t, []string{"1", "3", "5"}, got, "no row is returned twice")
	test.MustBe(t, 2, f.opens)
}

func TestCSVSourceGivesUp(t *testing.T) {
	src := csv.NewSource(csv.WithURLs([]string{"testdata/does-not-exist.csv"}), csv.WithMaxRetries(2))
	_, err := src.Record()
	if err == nil || !strings.Contains(err.Error(), "tried 2 times") {
		t.Fatalf("expected retry error, got %v", err)
	}
}

func TestCSVSourceClose(t *testing.T) {
	path := test.MustTempFile(t, "data.csv", "a\n1\n2\n3\n")
	src := csv.NewSource(csv.WithURLs([]string{path}))
	_, err := src.Record()
	test.ErrNil(t, err, "Record")
	test.ErrNil(t, src.Close(), "Close")
	for i := 0; i < 3; i++ {
		if _, err = src.Record(); err == io.EOF {
			return
		}
	}
	t.Fatalf("expected io.EOF after Close, got %v", err)
}
