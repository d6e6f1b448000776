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

package boltdb

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/ldkit/ldk"
	"github.com/pkg/errors"
)

func TestDeadLetter(t *testing.T) {
	boltFile := filepath.Join(t.TempDir(), "dead.db")
	dl, err := NewDeadLetter(boltFile, WithRedactor(ldk.NewRedactor("ssn")))
	if err != nil {
		t.Fatalf("couldn't get dead letter: %v", err)
	}
	firstRun := dl.RunID()
	if firstRun == "" {
		t.Fatal("empty run ID")
	}
	rec := ldk.Record{"PersonID": "1", "SSN": "123-45-6789"}
	if err := dl.Reject(3, rec, ldk.StageMap, errors.New("required field is missing")); err != nil {
		t.Fatalf("rejecting: %v", err)
	}
	if err := dl.Reject(7, ldk.Record{"Score": math.NaN()}, ldk.StageBuild, nil); err != nil {
		t.Fatalf("rejecting unencodable record: %v", err)
	}
	if rec["SSN"] != "123-45-6789" {
		t.Fatalf("Reject modified the record: %v", rec)
	}
	if dl.Rejected() != 2 {
		t.Fatalf("unexpected rejected count %d", dl.Rejected())
	}

	entries, err := dl.Entries("")
	if err != nil {
		t.Fatalf("getting entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("unexpected entries: %v", entries)
	}
	e := entries[0]
	if e.Seq != 1 || e.Ordinal != 3 || e.Stage != ldk.StageMap || e.Error != "required field is missing" || e.RunID != firstRun {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Record["SSN"] != ldk.Redacted || e.Record["PersonID"] != "1" {
		t.Fatalf("unexpected stored record: %v", e.Record)
	}
	if entries[1].Record["Score"] != "NaN" {
		t.Fatalf("unencodable value should be stored printed: %v", entries[1].Record)
	}

	err = dl.Close()
	if err != nil {
		t.Fatalf("closing: %v", err)
	}

	dl, err = NewDeadLetter(boltFile, WithRunID("second"))
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	if err := dl.Reject(0, ldk.Record{"PersonID": "2"}, ldk.StageSink, errors.New("boom")); err != nil {
		t.Fatalf("rejecting after reopen: %v", err)
	}
	second, err := dl.Entries("second")
	if err != nil {
		t.Fatalf("getting entries: %v", err)
	}
	if len(second) != 1 || second[0].Seq != 3 {
		t.Fatalf("unexpected entries for second run: %+v", second)
	}
	if err := dl.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	all, err := ReadEntries(boltFile, "")
	if err != nil {
		t.Fatalf("reading entries: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected entries from both runs, got %d", len(all))
	}
	first, err := ReadEntries(boltFile, firstRun)
	if err != nil {
		t.Fatalf("reading entries: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 entries for first run, got %d", len(first))
	}
}
