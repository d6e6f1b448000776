package build_test

import (
	"math"
	"strings"
	"testing"

	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/build"
	"github.com/ldkit/ldk/mapper"
	"github.com/ldkit/ldk/mapping"
	"github.com/ldkit/ldk/test"
)

func personConfig(t *testing.T) *mapping.Config {
	t.Helper()
	cfg, err := mapping.LoadFile("../testdata/person_mapping.yaml")
	test.ErrNil(t, err, "loading mapping")
	return cfg
}

func newBuilder(t *testing.T) *build.Builder {
	t.Helper()
	b, err := build.New(personConfig(t))
	test.ErrNil(t, err, "build.New")
	return b
}

func edith(t *testing.T) *ldk.MappedRecord {
	t.Helper()
	m, err := mapper.New(personConfig(t))
	test.ErrNil(t, err, "mapper.New")
	rec, err := m.Map(ldk.Record{
		"PersonID":              float64(989897099),
		"FirstName":             "EDITH",
		"LastName":              "ADAMS",
		"Birthdate":             "05/14/1965",
		"Sex":                   "Female",
		"PersonIdentifiers":     "989897099|40420",
		"IdentificationSystems": "SSN|District",
		"RaceEthnicity":         "White,Black|Asian",
	})
	test.ErrNil(t, err, "Map")
	return rec
}

func TestBuildEdith(t *testing.T) {
	doc, err := newBuilder(t).BuildOne(edith(t))
	test.ErrNil(t, err, "BuildOne")

	test.MustBe(t, "https://example.org/context/person.jsonld", doc[ldk.KeyContext])
	test.MustBe(t, "Person", doc.Type())
	if !strings.HasSuffix(doc.ID(), "989897099") {
		t.Fatalf("unexpected @id '%s'", doc.ID())
	}
	test.MustBe(t, "http://example.org/persons/989897099", doc.ID())

	ids, ok := doc["hasPersonIdentification"].([]interface{})
	if !ok || len(ids) != 2 {
		t.Fatalf("expected two identification sub-nodes, got %#v", doc["hasPersonIdentification"])
	}

	races, ok := doc["hasPersonDemographicRace"].([]interface{})
	if !ok || len(races) != 2 {
		t.Fatalf("expected a race array of two nodes, got %#v", doc["hasPersonDemographicRace"])
	}
	first := races[0].(map[string]interface{})
	test.MustBe(t, []interface{}{"RaceAndEthnicity_White", "RaceAndEthnicity_Black"}, first["hasRaceAndEthnicity"])
	second := races[1].(map[string]interface{})
	test.MustBe(t, "RaceAndEthnicity_Asian", second["hasRaceAndEthnicity"])

	test.MustJSON(t, doc["hasPersonBirth"], `{
		"@type": "PersonBirth",
		"Birthdate": {"@type": "xsd:date", "@value": "1965-05-14"}
	}`)
	test.MustJSON(t, doc["hasPersonName"], `{
		"@type": "PersonName",
		"FirstName": "EDITH",
		"LastOrSurname": "ADAMS",
		"hasRecordStatus": {
			"@type": "RecordStatus",
			"RecordStartDateTime": {"@type": "xsd:dateTime", "@value": "1900-01-01T00:00:00"},
			"RecordEndDateTime": {"@type": "xsd:dateTime", "@value": "9999-12-31T00:00:00"},
			"CommittedByOrganization": {"@id": "http://example.org/orgs/district-1"}
		}
	}`)
	test.MustJSON(t, second["hasDataCollection"], `{
		"@id": "http://example.org/collections/2024-fall",
		"@type": "DataCollection"
	}`)
}

func TestBuildIdempotentIndependentBoilerplate(t *testing.T) {
	b := newBuilder(t)
	rec := edith(t)
	d1, err := b.BuildOne(rec)
	test.ErrNil(t, err, "BuildOne 1")
	d2, err := b.BuildOne(rec)
	test.ErrNil(t, err, "BuildOne 2")
	test.MustBe(t, d1, d2)

	rs1 := d1["hasPersonName"].(map[string]interface{})["hasRecordStatus"].(map[string]interface{})
	rs2 := d2["hasPersonName"].(map[string]interface{})["hasRecordStatus"].(map[string]interface{})
	rs1["changed"] = true
	if _, ok := rs2["changed"]; ok {
		t.Fatal("record status shared between documents")
	}

	ids := d2["hasPersonIdentification"].([]interface{})
	a := ids[0].(map[string]interface{})["hasRecordStatus"].(map[string]interface{})
	c := ids[1].(map[string]interface{})["hasRecordStatus"].(map[string]interface{})
	a["RecordStartDateTime"].(map[string]interface{})["@value"] = "2000-01-01T00:00:00"
	test.MustBe(t, "1900-01-01T00:00:00", c["RecordStartDateTime"].(map[string]interface{})["@value"], "sub-nodes share boilerplate")

	d3, err := b.BuildOne(rec)
	test.ErrNil(t, err, "BuildOne 3")
	test.MustBe(t, d2["hasPersonBirth"], d3["hasPersonBirth"])
	rs3 := d3["hasPersonName"].(map[string]interface{})["hasRecordStatus"].(map[string]interface{})
	if _, ok := rs3["changed"]; ok {
		t.Fatal("template modified through a built document")
	}
}

func TestCollapse(t *testing.T) {
	b := newBuilder(t)
	for n := 0; n < 4; n++ {
		rec := ldk.NewMappedRecord("p1")
		var insts []ldk.Instance
		for i := 0; i < n; i++ {
			insts = append(insts, ldk.Instance{"PersonIdentifier": ldk.Scalar(string(rune('a' + i)))})
		}
		if n > 0 {
			rec.Properties["hasPersonIdentification"] = insts
		}
		doc, err := b.BuildOne(rec)
		test.ErrNil(t, err, "BuildOne")
		v, present := doc["hasPersonIdentification"]
		switch n {
		case 0:
			if present {
				t.Fatalf("n=0: key should be absent, got %#v", v)
			}
		case 1:
			if _, ok := v.(map[string]interface{}); !ok {
				t.Fatalf("n=1: expected an object, got %#v", v)
			}
		default:
			arr, ok := v.([]interface{})
			if !ok || len(arr) != n {
				t.Fatalf("n=%d: expected array of %d, got %#v", n, n, v)
			}
			test.MustBe(t, "a", arr[0].(map[string]interface{})["PersonIdentifier"], "order")
		}
	}
}

func TestEmptyInstancesProduceNoNodes(t *testing.T) {
	b := newBuilder(t)
	rec := ldk.NewMappedRecord("p1")
	rec.Properties["hasPersonIdentification"] = []ldk.Instance{{}, {"PersonIdentifier": ldk.Scalar("x")}}
	rec.Properties["hasPersonBirth"] = []ldk.Instance{{"Birthdate": ldk.Scalar("nan")}}
	doc, err := b.BuildOne(rec)
	test.ErrNil(t, err, "BuildOne")
	if _, ok := doc["hasPersonIdentification"].(map[string]interface{}); !ok {
		t.Fatalf("expected a single collapsed node, got %#v", doc["hasPersonIdentification"])
	}
	if v, ok := doc["hasPersonBirth"]; ok {
		t.Fatalf("birth with only a null date should be absent, got %#v", v)
	}
}

func TestTypedListDropsInvalid(t *testing.T) {
	cfg := personConfig(t)
	race, _ := cfg.Properties.Get("hasPersonDemographicRace")
	f, _ := race.Fields.Get("hasRaceAndEthnicity")
	f.Datatype = "xsd:token"
	race.Fields.Set("hasRaceAndEthnicity", f)
	cfg.Properties.Set("hasPersonDemographicRace", race)
	b, err := build.New(cfg)
	test.ErrNil(t, err, "build.New")

	rec := ldk.NewMappedRecord("p1")
	rec.Properties["hasPersonDemographicRace"] = []ldk.Instance{
		{"hasRaceAndEthnicity": ldk.List("White", "nan", "Asian")},
		{"hasRaceAndEthnicity": ldk.List("inf", "Black")},
		{"hasRaceAndEthnicity": ldk.List("None", "-inf")},
	}
	doc, err := b.BuildOne(rec)
	test.ErrNil(t, err, "BuildOne")
	test.MustJSON(t, doc["hasPersonDemographicRace"], `[
		{"@type": "PersonDemographicRace",
		 "hasRaceAndEthnicity": [{"@type": "xsd:token", "@value": "White"}, {"@type": "xsd:token", "@value": "Asian"}],
		 "hasRecordStatus": {
			"@type": "RecordStatus",
			"RecordStartDateTime": {"@type": "xsd:dateTime", "@value": "1900-01-01T00:00:00"},
			"RecordEndDateTime": {"@type": "xsd:dateTime", "@value": "9999-12-31T00:00:00"},
			"CommittedByOrganization": {"@id": "http://example.org/orgs/district-1"}},
		 "hasDataCollection": {"@id": "http://example.org/collections/2024-fall", "@type": "DataCollection"}},
		{"@type": "PersonDemographicRace",
		 "hasRaceAndEthnicity": {"@type": "xsd:token", "@value": "Black"},
		 "hasRecordStatus": {
			"@type": "RecordStatus",
			"RecordStartDateTime": {"@type": "xsd:dateTime", "@value": "1900-01-01T00:00:00"},
			"RecordEndDateTime": {"@type": "xsd:dateTime", "@value": "9999-12-31T00:00:00"},
			"CommittedByOrganization": {"@id": "http://example.org/orgs/district-1"}},
		 "hasDataCollection": {"@id": "http://example.org/collections/2024-fall", "@type": "DataCollection"}}
	]`)
}

func TestBuildErrors(t *testing.T) {
	b := newBuilder(t)
	for _, rec := range []*ldk.MappedRecord{nil, ldk.NewMappedRecord(""), ldk.NewMappedRecord("  ")} {
		if _, err := b.BuildOne(rec); err == nil {
			t.Fatalf("expected BuildError for %#v", rec)
		} else if _, ok := err.(*ldk.BuildError); !ok {
			t.Fatalf("expected BuildError, got %T", err)
		}
	}
	rec := ldk.NewMappedRecord("p1")
	rec.Properties["hasPet"] = []ldk.Instance{{"Name": ldk.Scalar("Rex")}}
	if _, err := b.BuildOne(rec); err == nil || !strings.Contains(err.Error(), "hasPet") {
		t.Fatalf("expected unknown property error, got %v", err)
	}
}

func TestNewRequiresDefaults(t *testing.T) {
	cfg := personConfig(t)
	cfg.DataCollectionDefaults = nil
	if _, err := build.New(cfg); err == nil || !strings.Contains(err.Error(), "data_collection_defaults") {
		t.Fatalf("expected missing defaults error, got %v", err)
	}
}

func TestTypedLiteral(t *testing.T) {
	for _, v := range []interface{}{nil, math.NaN(), math.Inf(1), math.Inf(-1), "", "  ", "None", "nan", "NaN", "inf", "-inf", "Infinity", "null"} {
		if lit, ok := build.TypedLiteral(v, "xsd:date"); ok {
			t.Errorf("expected no literal for %#v, got %v", v, lit)
		}
	}
	lit, ok := build.TypedLiteral("2000-01-01", "xsd:date")
	if !ok {
		t.Fatal("expected a literal")
	}
	test.MustBe(t, map[string]interface{}{"@type": "xsd:date", "@value": "2000-01-01"}, lit)

	lit, ok = build.TypedLiteral(3.5, "xsd:decimal")
	if !ok {
		t.Fatal("expected a literal")
	}
	test.MustBe(t, 3.5, lit["@value"])
}

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "989897099", want: "989897099"},
		{in: "abc-DEF_1.2~x", want: "abc-DEF_1.2~x"},
		{in: "a b", want: "a%20b"},
		{in: "a/b", want: "a%2Fb"},
		{in: "50%", want: "50%25"},
		{in: "Jos\u00e9", want: "Jos\u00e9"},
		{in: "Jose\u0301", want: "Jos\u00e9"},
		{in: "学生7", want: "学生7"},
		{in: "a?b#c", want: "a%3Fb%23c"},
		{in: "..", want: "%2E%2E"},
		{in: "../../../etc/passwd", want: "%2E%2E%2F%2E%2E%2F%2E%2E%2F%65%74%63%2F%70%61%73%73%77%64"},
		{in: `..\win`, want: "%2E%2E%5C%77%69%6E"},
		{in: "%2e%2e%2fx", want: "%25%32%65%25%32%65%25%32%66%78"},
		{in: "%252E%252E/x", want: "%25%32%35%32%45%25%32%35%32%45%2F%78"},
		{in: "a..b", want: "a..b"},
	}
	for _, tst := range tests {
		t.Run(tst.in, func(t *testing.T) {
			got := build.SanitizeID(tst.in)
			test.MustBe(t, tst.want, got)
		})
	}
}

func TestSanitizeTraversalLeavesNoDotsOrSlashes(t *testing.T) {
	got := build.SanitizeID("../../../etc/passwd")
	if strings.ContainsAny(got, "./") {
		t.Fatalf("traversal not neutralized: %s", got)
	}
}
