package compiler

import (
	"slices"

	"github.com/bufbuild/protocompile/reporter"
)

// MultiFileErrorCollector receives diagnostics produced while loading a set
// of files. Line and column are 1-based, with -1 for an unknown line; they
// are passed through as given.
type MultiFileErrorCollector interface {
	RecordError(filename string, line, column int, message string)
	RecordWarning(filename string, line, column int, message string)
}

// SimpleErrorCollector is a MultiFileErrorCollector that keeps every
// diagnostic in memory, in the order reported. It is not safe for
// concurrent use; create one per load operation.
type SimpleErrorCollector struct {
	errs []FileLoadError
}

var _ MultiFileErrorCollector = (*SimpleErrorCollector)(nil)

// NewSimpleErrorCollector returns an empty collector.
func NewSimpleErrorCollector() *SimpleErrorCollector {
	return &SimpleErrorCollector{}
}

func (c *SimpleErrorCollector) RecordError(filename string, line, column int, message string) {
	c.record(filename, line, column, message, false)
}

func (c *SimpleErrorCollector) RecordWarning(filename string, line, column int, message string) {
	c.record(filename, line, column, message, true)
}

func (c *SimpleErrorCollector) record(filename string, line, column int, message string, warning bool) {
	c.errs = append(c.errs, FileLoadError{
		Filename: filename,
		Line:     line,
		Column:   column,
		Message:  message,
		Warning:  warning,
	})
}

// Errors returns a copy of the diagnostics recorded so far, in the order
// they were reported. It returns nil if there are none.
func (c *SimpleErrorCollector) Errors() []FileLoadError {
	return slices.Clone(c.errs)
}

// Drain returns the diagnostics recorded so far and resets the collector.
func (c *SimpleErrorCollector) Drain() []FileLoadError {
	errs := c.errs
	c.errs = nil
	return errs
}

// HasErrors reports whether any non-warning diagnostic was recorded.
func (c *SimpleErrorCollector) HasErrors() bool {
	return slices.ContainsFunc(c.errs, func(e FileLoadError) bool { return !e.Warning })
}

// CollectorReporter returns a reporter that hands protocompile's errors and
// warnings to c. Errors never abort the operation early; once it finishes,
// protocompile reports reporter.ErrInvalidSource if any error was seen.
func CollectorReporter(c MultiFileErrorCollector) reporter.Reporter {
	return reporter.NewReporter(
		func(err reporter.ErrorWithPos) error {
			filename, line, column, msg := diagnostic(err)
			c.RecordError(filename, line, column, msg)
			return nil
		},
		func(err reporter.ErrorWithPos) {
			filename, line, column, msg := diagnostic(err)
			c.RecordWarning(filename, line, column, msg)
		},
	)
}

func diagnostic(err reporter.ErrorWithPos) (filename string, line, column int, msg string) {
	pos := err.GetPosition()
	line, column = pos.Line, pos.Col
	if line <= 0 {
		line, column = -1, 0
	}
	msg = err.Error()
	if cause := err.Unwrap(); cause != nil {
		msg = cause.Error()
	}
	return pos.Filename, line, column, msg
}
