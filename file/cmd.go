package file

import (
	"github.com/ldkit/ldk"
	"github.com/ldkit/ldk/ingest"
)

// Main ingests a file or every file in a directory.
type Main struct {
	ingest.Main `flag:"!embed"`
	Path        string `help:"File or directory path to read from."`
	FileFormat  string `help:"Read every file as csv, tsv or json instead of going by extension."`
	SubjectAt   string `help:"Tells the source to add a key with this name to each record holding the file name and record number."`
}

// NewMain returns a Main with the defaults.
func NewMain() *Main {
	m := &Main{
		Main: *ingest.NewMain(),
	}
	m.NewSource = func() (ldk.Source, error) {
		return NewSource(
			OptSrcPath(m.Path),
			OptSrcFormat(m.FileFormat),
			OptSrcSubjectAt(m.SubjectAt),
		)
	}
	return m
}
