package cmd

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ldkit/ldk/boltdb"
	"github.com/ldkit/ldk/test"
	"github.com/spf13/pflag"
)

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	rc := NewRootCommand(strings.NewReader(stdin), stdout, stderr)
	rc.SetArgs(args)
	err := rc.Execute()
	return stdout.String(), stderr.String(), err
}

func TestShapeCommands(t *testing.T) {
	out, _, err := execute(t, "", "shape", "check", "--shape", "../testdata/person.ttl", "--mapping", "../testdata/person_mapping.yaml")
	test.ErrNil(t, err, "shape check")
	if !strings.Contains(out, "mapping fits the shape (0 warnings)") {
		t.Fatalf("unexpected output: %s", out)
	}

	out, _, err = execute(t, "", "shape", "tree", "--shape", "../testdata/person.ttl", "--names", "../testdata/names.yaml")
	test.ErrNil(t, err, "shape tree")
	if !strings.Contains(out, `"name": "PersonShape"`) {
		t.Fatalf("unexpected tree: %s", out)
	}

	out, _, err = execute(t, "", "shape", "template", "--shape", "../testdata/person.ttl")
	test.ErrNil(t, err, "shape template")
	if !strings.Contains(out, "hasPersonName") {
		t.Fatalf("unexpected template: %s", out)
	}

	_, _, err = execute(t, "", "shape", "check", "--shape", "../testdata/person.ttl")
	if err == nil || !strings.Contains(err.Error(), "mapping configuration is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigSources(t *testing.T) {
	conf := test.MustTempFile(t, "ldk.yaml", "shape: ../testdata/person.ttl\nmapping: ../testdata/person_mapping.yaml\n")
	out, _, err := execute(t, "", "shape", "check", "--config", conf)
	test.ErrNil(t, err, "config file")
	if !strings.Contains(out, "mapping fits the shape") {
		t.Fatalf("unexpected output: %s", out)
	}

	t.Setenv("LDK_MAPPING", "../testdata/person_mapping.yaml")
	out, _, err = execute(t, "", "shape", "check", "--shape", "../testdata/person.ttl")
	test.ErrNil(t, err, "environment")
	if !strings.Contains(out, "mapping fits the shape") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSetAllConfig(t *testing.T) {
	fs := pflag.NewFlagSet("ldk", pflag.ContinueOnError)
	files := fs.StringSlice("files", nil, "")
	name := fs.String("name", "", "")
	fs.String("config", "", "")
	path := test.MustTempFile(t, "ldkconf", "files = [\"a.csv\", \"b.csv\"]\nname = \"file\"\n")
	test.ErrNil(t, fs.Parse([]string{"--config", path, "--name", "flag"}), "Parse")

	test.ErrNil(t, setAllConfig(newConfig("LDKTEST"), fs), "setAllConfig")
	test.MustBe(t, []string{"a.csv", "b.csv"}, *files, "list from file")
	test.MustBe(t, "flag", *name, "command line wins")

	fs = pflag.NewFlagSet("ldk", pflag.ContinueOnError)
	fs.String("config", "", "")
	test.ErrNil(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}), "Parse")
	err := setAllConfig(newConfig("LDKTEST"), fs)
	if err == nil || !strings.Contains(err.Error(), "reading configuration file") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCSVCommand(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "people.ndjson")
	deadLetter := filepath.Join(dir, "dead.db")
	_, stderr, err := execute(t, "", "csv",
		"--files", "../testdata/people.csv",
		"--mapping", "../testdata/person_mapping.yaml",
		"--output", output,
		"--dead-letter", deadLetter,
		"--log-path", filepath.Join(dir, "log"),
	)
	test.ErrNil(t, err, "csv")
	if !strings.Contains(stderr, "Done:") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
	data, err := ioutil.ReadFile(output)
	test.ErrNil(t, err, "reading output")
	test.MustBe(t, 2, strings.Count(string(data), "\n"))

	out, _, err := execute(t, "", "deadletter", deadLetter)
	test.ErrNil(t, err, "deadletter")
	test.MustBe(t, 2, strings.Count(out, "\n"))
	entries, err := boltdb.ReadEntries(deadLetter, "")
	test.ErrNil(t, err, "ReadEntries")
	test.MustBe(t, 2, len(entries))
}

func TestFakeCommand(t *testing.T) {
	output := filepath.Join(t.TempDir(), "people.ndjson")
	_, _, err := execute(t, "", "fake",
		"--num", "25",
		"--gen-seed", "3",
		"--concurrency", "4",
		"--mapping", "../testdata/person_mapping.yaml",
		"--output", output,
	)
	test.ErrNil(t, err, "fake")
	data, err := ioutil.ReadFile(output)
	test.ErrNil(t, err, "reading output")
	test.MustBe(t, 25, strings.Count(string(data), "\n"))
	if !strings.Contains(string(data), `"@id":"http://example.org/persons/`) {
		t.Fatalf("unexpected output: %s", data)
	}
}

func TestJSONCommandReadsStdin(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "people.json")
	in := `{"PersonID": 989897099, "FirstName": "EDITH", "LastName": "ADAMS", "Birthdate": "05/14/1965", "Sex": "Female",
 "PersonIdentifiers": "989897099|40420", "IdentificationSystems": "SSN|District", "RaceEthnicity": "White,Black|Asian"}`
	_, _, err := execute(t, in, "json",
		"--mapping", "../testdata/person_mapping.yaml",
		"--output", output,
		"--format", "array",
		"--log-path", filepath.Join(dir, "log"),
	)
	test.ErrNil(t, err, "json")
	data, err := ioutil.ReadFile(output)
	test.ErrNil(t, err, "reading output")
	if !strings.HasPrefix(string(data), "[\n") || !strings.Contains(string(data), "persons/989897099") {
		t.Fatalf("unexpected output: %s", data)
	}
}

func TestPreflightCommand(t *testing.T) {
	out, stderr, err := execute(t, "", "preflight",
		"--mapping", "../testdata/person_mapping.yaml",
		"--shape", "../testdata/person.ttl",
		"--path", "../testdata/people.csv",
	)
	if err == nil || !strings.Contains(err.Error(), "preflight errors") {
		t.Fatalf("expected preflight errors, got %v", err)
	}
	if !strings.Contains(stderr, "4 records checked") {
		t.Fatalf("unexpected stderr: %s", stderr)
	}
	if !strings.Contains(out, `"conforms": false`) {
		t.Fatalf("unexpected report: %s", out)
	}
}
