package ldk

import (
	"fmt"
	"strings"
)

// ShapeLoadError is returned when a shape schema, mapping configuration or
// name lookup cannot be read or parsed.
type ShapeLoadError struct {
	Source string
	Err    error
}

func (e *ShapeLoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("loading shape: %v", e.Err)
	}
	return fmt.Sprintf("loading shape from '%s': %v", e.Source, e.Err)
}

// Unwrap returns the underlying error.
func (e *ShapeLoadError) Unwrap() error { return e.Err }

// MappingError is returned when a raw record cannot be mapped.
type MappingError struct {
	RecordID  string
	Property  string
	Field     string
	Transform string
	Message   string
	Err       error
}

func (e *MappingError) Error() string {
	var sb strings.Builder
	sb.WriteString("mapping")
	if e.RecordID != "" {
		fmt.Fprintf(&sb, " record '%s'", e.RecordID)
	}
	if e.Property != "" {
		fmt.Fprintf(&sb, " property '%s'", e.Property)
	}
	if e.Field != "" {
		fmt.Fprintf(&sb, " field '%s'", e.Field)
	}
	if e.Transform != "" {
		fmt.Fprintf(&sb, " transform '%s'", e.Transform)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying error, if any.
func (e *MappingError) Unwrap() error { return e.Err }

// BuildError is returned when a mapped record cannot be turned into a
// document.
type BuildError struct {
	RecordID string
	Message  string
}

func (e *BuildError) Error() string {
	if e.RecordID == "" {
		return "building document: " + e.Message
	}
	return fmt.Sprintf("building document '%s': %s", e.RecordID, e.Message)
}

// ValidationError is returned by validators in strict mode for the first
// issue they find.
type ValidationError struct {
	RecordID string
	Issue    FieldIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validating record '%s': %s", e.RecordID, e.Issue)
}

// SerializationError is returned by serializers for values they will not
// encode, such as non-finite numbers.
type SerializationError struct {
	Path    string
	Message string
	Err     error
}

func (e *SerializationError) Error() string {
	msg := "serializing"
	if e.Path != "" {
		msg += " '" + e.Path + "'"
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *SerializationError) Unwrap() error { return e.Err }

// Stage names a pipeline stage for dead letters and logs.
type Stage string

// Pipeline stages.
const (
	StageSource    Stage = "source"
	StagePreflight Stage = "preflight"
	StageMap       Stage = "map"
	StageBuild     Stage = "build"
	StageSchema    Stage = "schema"
	StageSink      Stage = "sink"
)
