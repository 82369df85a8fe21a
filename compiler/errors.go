package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// FileNotFoundMessage is the message reported by a source tree that has no
// file with a requested name.
const FileNotFoundMessage = "File not found."

// ErrFileNotLoadable is returned by a DescriptorDatabase that could not
// produce a descriptor for a file. Details, if any, are reported to the
// database's error collector.
var ErrFileNotLoadable = errors.New("file not loadable")

// Severity describes how serious a FileLoadError is.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// Location is a 1-based position in a source file.
type Location struct {
	Line   int
	Column int
}

// FileLoadError is a single diagnostic reported while loading files. Line
// and Column are 1-based; a Line of -1 means the diagnostic applies to the
// whole file (for example, because it could not be found).
type FileLoadError struct {
	Filename string
	Line     int
	Column   int
	Message  string
	Warning  bool
}

// Severity returns SeverityWarning for warnings and SeverityError otherwise.
func (e FileLoadError) Severity() Severity {
	if e.Warning {
		return SeverityWarning
	}
	return SeverityError
}

// Location returns the position of the diagnostic, if it has one.
func (e FileLoadError) Location() (Location, bool) {
	if e.Line < 0 {
		return Location{}, false
	}
	return Location{Line: e.Line, Column: e.Column}, true
}

// String formats the diagnostic like a compiler would, for example
// "foo.proto:3:1: error: bad token".
func (e FileLoadError) String() string {
	var sb strings.Builder
	sb.WriteString(e.Filename)
	sb.WriteByte(':')
	if loc, ok := e.Location(); ok {
		fmt.Fprintf(&sb, "%d:%d:", loc.Line, loc.Column)
	}
	fmt.Fprintf(&sb, " %s: %s", e.Severity(), e.Message)
	return sb.String()
}

// FileOpenError is returned by a SourceTree that cannot open a file. Its
// message is exactly what the tree reports from LastErrorMessage.
type FileOpenError struct {
	Filename string
	Message  string
	// Err is the underlying cause, if any.
	Err error
}

func (e *FileOpenError) Error() string {
	return e.Message
}

func (e *FileOpenError) Unwrap() error {
	return e.Err
}

// Is reports absent files as fs.ErrNotExist, so callers can test for a
// missing file without inspecting the message.
func (e *FileOpenError) Is(target error) bool {
	return target == fs.ErrNotExist && e.Message == FileNotFoundMessage
}

func errFileNotFound(filename string) *FileOpenError {
	return &FileOpenError{Filename: filename, Message: FileNotFoundMessage}
}
