// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package ldk_test

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/test"
)

type batchSource struct {
	*ldk.SliceSource
	calls int
}

func (b *batchSource) Records(n int) ([]ldk.Record, error) {
	b.calls++
	return ldk.Records(b.SliceSource, n)
}

func TestSliceSource(t *testing.T) {
	src := ldk.NewSliceSource(people(3))
	n, ok := src.Count()
	test.MustBe(t, int64(3), n)
	test.MustBe(t, true, ok)

	for i := 0; i < 3; i++ {
		rec, err := src.Record()
		test.ErrNil(t, err, "Record")
		test.MustBe(t, people(3)[i], rec)
	}
	if _, err := src.Record(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := src.Record(); err != io.EOF {
		t.Fatalf("expected io.EOF again, got %v", err)
	}
}

func TestRecords(t *testing.T) {
	src := ldk.NewSliceSource(people(5))
	recs, err := ldk.Records(src, 2)
	test.ErrNil(t, err, "first batch")
	test.MustBe(t, 2, len(recs))

	recs, err = ldk.Records(src, 4)
	if err != io.EOF {
		t.Fatalf("expected io.EOF with the short batch, got %v", err)
	}
	test.MustBe(t, 3, len(recs))

	bs := &batchSource{SliceSource: ldk.NewSliceSource(people(2))}
	recs, err = ldk.Records(bs, 2)
	test.ErrNil(t, err, "batch source")
	test.MustBe(t, 2, len(recs))
	test.MustBe(t, 1, bs.calls)
}

func TestValidationResult(t *testing.T) {
	res := ldk.NewValidationResult()
	test.MustBe(t, true, res.Conforms(), "empty")

	res.Add("a", ldk.FieldIssue{Path: "FirstName", Message: "required", Severity: ldk.SeverityError})
	res.Add("b", ldk.FieldIssue{Path: "Sex", Message: "unknown value", Severity: ldk.SeverityWarning})
	res.Add("a", ldk.FieldIssue{Path: "LastName", Message: "required", Severity: ldk.SeverityError})
	res.Records = 2
	test.MustBe(t, false, res.Conforms())
	test.MustBe(t, 2, res.ErrorCount())
	test.MustBe(t, 1, res.WarningCount())
	test.MustBe(t, []string{"a", "b"}, res.RecordIDs())
	test.MustBe(t, 2, len(res.Issues("a")))

	warn := ldk.NewValidationResult()
	warn.Records = 3
	warn.Add("c", ldk.FieldIssue{Path: "Birthdate", Message: "bad date", Severity: ldk.SeverityWarning})
	test.MustBe(t, true, warn.Conforms(), "warnings only")

	res.Merge(warn)
	res.Merge(nil)
	test.MustBe(t, 5, res.Records)
	test.MustBe(t, 2, res.ErrorCount())
	test.MustBe(t, 2, res.WarningCount())
	test.MustBe(t, res.ErrorCount()+res.WarningCount(), len(res.All()))
	test.MustBe(t, []string{"a", "b", "c"}, res.RecordIDs())

	issues := res.Issues("a")
	issues[0].Path = "changed"
	test.MustBe(t, "FirstName", res.Issues("a")[0].Path, "Issues returns a copy")

	data, err := json.Marshal(res)
	test.ErrNil(t, err, "marshal")
	var summary struct {
		Conforms bool `json:"conforms"`
		Records  int  `json:"records"`
		Errors   int  `json:"errors"`
		Warnings int  `json:"warnings"`
		Issues   []struct {
			Record string `json:"record"`
		} `json:"issues"`
	}
	test.ErrNil(t, json.Unmarshal(data, &summary), "unmarshal")
	test.MustBe(t, false, summary.Conforms)
	test.MustBe(t, 5, summary.Records)
	test.MustBe(t, 2, summary.Errors)
	test.MustBe(t, 2, summary.Warnings)
	test.MustBe(t, 3, len(summary.Issues))
	test.MustBe(t, "a", summary.Issues[0].Record)
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in     string
		exp    ldk.Mode
		expErr string
	}{
		{in: "strict", exp: ldk.ModeStrict},
		{in: " Report ", exp: ldk.ModeReport},
		{in: "SAMPLE", exp: ldk.ModeSample},
		{in: "", exp: ldk.ModeReport},
		{in: "loose", expErr: "unknown validation mode 'loose'"},
	}
	for _, tst := range tests {
		t.Run(tst.in, func(t *testing.T) {
			m, err := ldk.ParseMode(tst.in)
			if tst.expErr != "" {
				if err == nil || !strings.Contains(err.Error(), tst.expErr) {
					t.Fatalf("expected error containing %q, got %v", tst.expErr, err)
				}
				return
			}
			test.ErrNil(t, err, "ParseMode")
			test.MustBe(t, tst.exp, m)
		})
	}
}

func TestRedactor(t *testing.T) {
	rec := ldk.Record{
		"PersonID":  "989897099",
		"FirstName": "EDITH",
		"Birthdate": "05/14/1965",
		"Nested":    map[string]interface{}{"x": "y"},
	}
	r := ldk.NewRedactor("personid", " FIRSTNAME ", "")
	got := r.Redact(rec)
	test.MustBe(t, ldk.Redacted, got["PersonID"])
	test.MustBe(t, ldk.Redacted, got["FirstName"])
	test.MustBe(t, "05/14/1965", got["Birthdate"])
	test.MustBe(t, "989897099", rec["PersonID"], "original untouched")

	got["Nested"].(map[string]interface{})["x"] = "z"
	test.MustBe(t, "y", rec["Nested"].(map[string]interface{})["x"], "values are copied")

	var nilRedactor *ldk.Redactor
	test.MustBe(t, rec, nilRedactor.Redact(rec))
	if nilRedactor.Redact(nil) != nil {
		t.Fatal("redacting nil should give nil")
	}
}

func TestIdentifierProblem(t *testing.T) {
	tests := []struct {
		raw interface{}
		exp string
	}{
		{raw: "0", exp: ""},
		{raw: 7, exp: ""},
		{raw: 0, exp: "identifier is zero"},
		{raw: uint8(0), exp: "identifier is zero"},
		{raw: 0.0, exp: "identifier is zero"},
		{raw: json.Number("0.0"), exp: "identifier is zero"},
		{raw: json.Number("12"), exp: ""},
		{raw: true, exp: "boolean true is not a valid identifier"},
	}
	for _, tst := range tests {
		test.MustBe(t, tst.exp, ldk.IdentifierProblem(tst.raw), fmt.Sprintf("%T %v", tst.raw, tst.raw))
	}
}
