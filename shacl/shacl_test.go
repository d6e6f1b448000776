package shacl_test

import (
	"os"
	"strings"
	"testing"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/build"
	"github.com/ldkit/ldk/mapper"
	"github.com/ldkit/ldk/mapping"
	"github.com/ldkit/ldk/shacl"
	"github.com/ldkit/ldk/shape"
	"github.com/ldkit/ldk/test"
)

const contextURL = "https://example.org/context/person.jsonld"

func newValidator(t *testing.T, opts ...shacl.Option) *shacl.Validator {
	t.Helper()
	f, err := os.Open("../testdata/person.ttl")
	test.ErrNil(t, err, "opening schema")
	defer f.Close()
	model, err := shape.Parse(f)
	test.ErrNil(t, err, "Parse")
	v, err := shacl.New(model, append([]shacl.Option{shacl.WithContextFile(contextURL, "../testdata/person_context.jsonld")}, opts...)...)
	test.ErrNil(t, err, "New")
	return v
}

func personDoc(t *testing.T, id string) ldk.Document {
	t.Helper()
	cfg, err := mapping.LoadFile("../testdata/person_mapping.yaml")
	test.ErrNil(t, err, "LoadFile")
	m, err := mapper.New(cfg)
	test.ErrNil(t, err, "mapper.New")
	b, err := build.New(cfg)
	test.ErrNil(t, err, "build.New")
	mr, err := m.Map(ldk.Record{
		"PersonID":              id,
		"FirstName":             "EDITH",
		"LastName":              "ADAMS",
		"Birthdate":             "05/14/1965",
		"Sex":                   "Female",
		"PersonIdentifiers":     id + "|40420",
		"IdentificationSystems": "SSN|District",
		"RaceEthnicity":         "White,Black|Asian",
	})
	test.ErrNil(t, err, "Map")
	doc, err := b.BuildOne(mr)
	test.ErrNil(t, err, "BuildOne")
	return doc
}

func node(doc ldk.Document, prop string) map[string]interface{} {
	return doc[prop].(map[string]interface{})
}

func recordStatus(doc ldk.Document) map[string]interface{} {
	return node(doc, "hasPersonName")["hasRecordStatus"].(map[string]interface{})
}

func TestConforms(t *testing.T) {
	v := newValidator(t)
	res, err := v.ValidateOne(personDoc(t, "989897099"))
	test.ErrNil(t, err, "ValidateOne")
	if len(res.All()) != 0 {
		t.Fatalf("unexpected issues: %v", res.All())
	}
	test.MustBe(t, true, res.Conforms())
	test.MustBe(t, 1, res.Records)
}

func TestViolations(t *testing.T) {
	tests := []struct {
		name   string
		modify func(ldk.Document)
		want   []string
	}{
		{
			name:   "missing required field",
			modify: func(d ldk.Document) { delete(node(d, "hasPersonName"), "FirstName") },
			want:   []string{"error FirstName: fewer than 1 values", "error hasPersonName: value does not conform to PersonNameShape"},
		},
		{
			name:   "closed shape",
			modify: func(d ldk.Document) { node(d, "hasPersonName")["Nickname"] = "EDIE" },
			want:   []string{"error Nickname: predicate is not allowed by closed shape PersonNameShape", "error hasPersonName: value does not conform to PersonNameShape"},
		},
		{
			name:   "not in list",
			modify: func(d ldk.Document) { node(d, "hasPersonSexGender")["hasSex"] = "Sex_Unknown" },
			want:   []string{"error hasSex: value is not in the allowed list", "error hasPersonSexGender: value does not conform to PersonSexGenderShape"},
		},
		{
			name:   "plain string for date",
			modify: func(d ldk.Document) { node(d, "hasPersonBirth")["Birthdate"] = "1965-05-14" },
			want:   []string{"error Birthdate: value does not have datatype xsd:date", "error hasPersonBirth: value does not conform to PersonBirthShape"},
		},
		{
			name:   "warning severity",
			modify: func(d ldk.Document) { recordStatus(d)["CommittedByOrganization"] = "district 1" },
			want:   []string{"warning CommittedByOrganization: value is not of node kind IRI"},
		},
		{
			name:   "too many values",
			modify: func(d ldk.Document) {
				n := node(d, "hasPersonName")
				d["hasPersonName"] = []interface{}{n, n}
			},
			want:   []string{"error hasPersonName: more than 1 values"},
		},
	}
	v := newValidator(t)
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			doc := personDoc(t, "989897099")
			tst.modify(doc)
			res, err := v.ValidateOne(doc)
			test.ErrNil(t, err, "ValidateOne")
			var got []string
			for _, i := range res.All() {
				got = append(got, string(i.Severity)+" "+i.Path+": "+i.Message)
			}
			test.MustBe(t, tst.want, got)
			for _, id := range res.RecordIDs() {
				test.MustBe(t, "http://example.org/persons/989897099", id)
			}
		})
	}
}

func TestUnknownContext(t *testing.T) {
	f, err := os.Open("../testdata/person.ttl")
	test.ErrNil(t, err, "opening schema")
	defer f.Close()
	model, err := shape.Parse(f)
	test.ErrNil(t, err, "Parse")
	v, err := shacl.New(model)
	test.ErrNil(t, err, "New")

	_, err = v.ValidateOne(personDoc(t, "1"))
	if err == nil || !strings.Contains(err.Error(), contextURL) {
		t.Fatalf("expected missing context error, got %v", err)
	}

	res, err := v.ValidateBatch([]ldk.Document{personDoc(t, "1")}, ldk.ModeReport, 1)
	test.ErrNil(t, err, "report mode")
	test.MustBe(t, 1, res.ErrorCount(), "conversion failure is reported")

	if _, err := shacl.New(model, shacl.WithContextFile(contextURL, "../testdata/nope.jsonld")); err == nil {
		t.Fatal("expected error for missing context file")
	}
}

func TestWithContext(t *testing.T) {
	f, err := os.Open("../testdata/person.ttl")
	test.ErrNil(t, err, "opening schema")
	defer f.Close()
	model, err := shape.Parse(f)
	test.ErrNil(t, err, "Parse")
	vocab := map[string]interface{}{"@type": "@vocab"}
	ctx := map[string]interface{}{
		"@vocab": "http://ceds.ed.gov/terms#",
		"xsd":    "http://www.w3.org/2001/XMLSchema#",
		"hasSex": vocab,
	}
	ctx["hasRaceAndEthnicity"] = vocab
	v, err := shacl.New(model, shacl.WithContext(contextURL, ctx))
	test.ErrNil(t, err, "New")
	res, err := v.ValidateOne(personDoc(t, "1"))
	test.ErrNil(t, err, "ValidateOne")
	test.MustBe(t, true, res.Conforms(), "bare context object")
}

func TestCycle(t *testing.T) {
	model, err := shape.Parse(strings.NewReader(`
@prefix sh: <http://www.w3.org/ns/shacl#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
@prefix ex: <http://example.org/> .
ex:AShape a sh:NodeShape ; sh:targetClass ex:A ;
    sh:property [ sh:path ex:next ; sh:node ex:BShape ] .
ex:BShape a sh:NodeShape ;
    sh:property [ sh:path ex:back ; sh:node ex:AShape ] , [ sh:path ex:label ; sh:datatype xsd:string ; sh:minCount 1 ] .
`))
	test.ErrNil(t, err, "Parse")
	v, err := shacl.New(model)
	test.ErrNil(t, err, "New")
	res, err := v.ValidateOne(ldk.Document{
		"@context": map[string]interface{}{"@vocab": "http://example.org/"},
		"@id":      "http://example.org/a",
		"@type":    "A",
		"next": map[string]interface{}{
			"@id":  "http://example.org/b",
			"back": map[string]interface{}{"@id": "http://example.org/a"},
		},
	})
	test.ErrNil(t, err, "ValidateOne")
	var got []string
	for _, i := range res.All() {
		got = append(got, i.Path+": "+i.Message)
	}
	test.MustBe(t, []string{"next: value does not conform to BShape", "label: fewer than 1 values"}, got)
}

func TestValidateBatch(t *testing.T) {
	v := newValidator(t, shacl.WithSeed(7))
	var docs []ldk.Document
	for i := 0; i < 40; i++ {
		doc := personDoc(t, strings.Repeat("9", i+1))
		if i%4 == 0 {
			node(doc, "hasPersonSexGender")["hasSex"] = "Sex_Unknown"
		}
		docs = append(docs, doc)
	}

	res, err := v.ValidateBatch(docs, ldk.ModeReport, 1)
	test.ErrNil(t, err, "report")
	test.MustBe(t, 40, res.Records)
	test.MustBe(t, 20, res.ErrorCount(), "bad value plus its parent")

	_, err = v.ValidateBatch(docs, ldk.ModeStrict, 1)
	verr, ok := err.(*ldk.ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	test.MustBe(t, "http://example.org/persons/9", verr.RecordID)

	a, err := v.ValidateBatch(docs, ldk.ModeSample, 0.5)
	test.ErrNil(t, err, "sample")
	b, err := v.ValidateBatch(docs, ldk.ModeSample, 0.5)
	test.ErrNil(t, err, "sample")
	test.MustBe(t, a.Records, b.Records)
	test.MustBe(t, a.RecordIDs(), b.RecordIDs())
	if a.Records == 0 || a.Records == 40 {
		t.Fatalf("sample of %d documents isn't a subset", a.Records)
	}

	if _, err := v.ValidateBatch(docs, ldk.ModeSample, 1.5); err == nil {
		t.Fatal("expected error for sample rate above 1")
	}
}
