// ldk is the Linked Data Kit. It turns tabular education records into typed
// JSON-LD documents whose structure is dictated by a SHACL shape schema.
//
// Of principal importance in the LDK is the ingest pipeline. Interfaces for
// each stage listed below are defined in this package, and implementations,
// some of which rely on other software, live in sub-packages.
//
// 1. Source
//
//    A ldk.Source is at the beginning of every run. Records live in CSV
//    exports, SQLite extracts, S3 buckets, Kafka topics and HTTP callers.
//    Different Sources know how to get them out one at a time as a flat
//    map of column name to scalar value. It is not the job of the source to
//    massage the data; that job falls to the Mapper. A Source may also
//    implement BatchSource and Counter.
//
// 2. Mapper
//
//    The Mapper (package mapper) applies a declarative mapping configuration
//    (package mapping) to a raw record. It extracts and sanitizes the record
//    identifier, splits delimiter-encoded multi-valued columns into aligned
//    instances, runs named transforms and rejects values which cannot be
//    represented. Its output is a MappedRecord.
//
// 3. Builder
//
//    The Builder (package build) turns a MappedRecord into a Document: the
//    identifier becomes a safe IRI, datatyped fields become typed literals,
//    record-status and data-collection boilerplate is injected, and sub-nodes
//    collapse to an object when there is exactly one of them.
//
// 4. Validators
//
//    Validation has two tiers. The preflight tier (package preflight) runs on
//    every raw record and checks presence, datatype plausibility and allowed
//    values. The schema tier (package shacl) expands built documents to RDF
//    and checks them against the full shape (package shape). It is expensive
//    and is normally run on a sample.
//
// 5. Sink
//
//    The Sink is responsible for getting documents somewhere: a JSON-LD file
//    (package jsonld), a key-value store (package leveldb) or a bulk upload
//    target (package bulk). Records which fail any stage can be routed to a
//    DeadLetter (package boltdb) instead of aborting the run.
//
// The Ingester in this package sequences the stages.
package ldk
