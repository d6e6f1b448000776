package preflight

import "testing"

func TestDatatypeChecks(t *testing.T) {
	tests := []struct {
		datatype string
		in       string
		want     bool
	}{
		{"xsd:date", "2000-01-01", true},
		{"xsd:date", "2000-02-29", true},
		{"xsd:date", "2001-02-29", false},
		{"xsd:date", "2000-1-01", false},
		{"xsd:date", "2000-13-01", false},
		{"xsd:date", "20000-01-01", false},
		{"xsd:date", "01/14/2000", false},
		{"xsd:dateTime", "2000-01-01T00:00:00", true},
		{"xsd:dateTime", "2000-01-01 00:00:00", false},
		{"xsd:dateTime", "2000-02-30T01:00:00", false},
		{"xsd:dateTime", "2000-01-01T", false},
		{"xsd:integer", "12", true},
		{"xsd:integer", "12.0", true},
		{"xsd:integer", "12.5", false},
		{"xsd:integer", "NaN", false},
		{"xsd:int", "abc", false},
		{"xsd:nonNegativeInteger", "0", true},
		{"xsd:nonNegativeInteger", "-1", false},
		{"xsd:positiveInteger", "0", false},
		{"xsd:decimal", "1.5", true},
		{"xsd:double", "inf", false},
		{"xsd:boolean", "TRUE", true},
		{"xsd:boolean", "0", true},
		{"xsd:boolean", "yes", false},
		{"http://www.w3.org/2001/XMLSchema#date", "2000-01-01", true},
	}
	for _, tst := range tests {
		check := datatypeCheck(tst.datatype)
		if check == nil {
			t.Fatalf("no check for %s", tst.datatype)
		}
		if got := check(tst.in); got != tst.want {
			t.Errorf("%s(%q) = %v, want %v", tst.datatype, tst.in, got, tst.want)
		}
	}
}

func TestNoCheck(t *testing.T) {
	for _, dt := range []string{"xsd:string", "xsd:anyURI", "http://example.org/custom", ""} {
		if datatypeCheck(dt) != nil {
			t.Errorf("expected no check for '%s'", dt)
		}
	}
}
