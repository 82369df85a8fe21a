package compiler

import (
	"errors"
	"fmt"

	"github.com/bufbuild/protocompile/parser"
	"github.com/bufbuild/protocompile/reporter"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protonative/logging"
	"github.com/jhump/protonative/zerocopy"
)

// DescriptorDatabase looks up file descriptor protos by file name.
type DescriptorDatabase interface {
	// FindFileByName returns the descriptor for the named file. If the file
	// cannot be produced, the error matches ErrFileNotLoadable.
	FindFileByName(filename string) (*descriptorpb.FileDescriptorProto, error)
}

// SourceTreeDescriptorDatabase is a DescriptorDatabase that loads files from
// a SourceTree and parses them. Parsed descriptors are not linked, so
// references to other types are left as written in the source.
//
// The database borrows the tree: it never copies or closes it, and the tree
// must stay usable for as long as the database is.
type SourceTreeDescriptorDatabase struct {
	tree      SourceTree
	collector MultiFileErrorCollector
	logger    logrus.FieldLogger
}

var _ DescriptorDatabase = (*SourceTreeDescriptorDatabase)(nil)

// NewSourceTreeDescriptorDatabase returns a database that reads from tree.
func NewSourceTreeDescriptorDatabase(tree SourceTree) *SourceTreeDescriptorDatabase {
	return &SourceTreeDescriptorDatabase{tree: tree}
}

// RecordErrorsTo directs parse errors and warnings, along with failures to
// open files, to c. It should be called before any lookups. Without a
// collector, such diagnostics are dropped.
func (db *SourceTreeDescriptorDatabase) RecordErrorsTo(c MultiFileErrorCollector) {
	db.collector = c
}

// SetLogger sets the logger used for debug output. A nil logger selects the
// process-wide logger from the logging package.
func (db *SourceTreeDescriptorDatabase) SetLogger(l logrus.FieldLogger) {
	db.logger = l
}

// standardFileProvider is implemented by trees that can serve some files
// as ready-made descriptors instead of as source.
type standardFileProvider interface {
	standardFile(filename string) (*descriptorpb.FileDescriptorProto, bool)
}

func (db *SourceTreeDescriptorDatabase) FindFileByName(filename string) (*descriptorpb.FileDescriptorProto, error) {
	log := logging.Or(db.logger).WithField("file", filename)
	if sp, ok := db.tree.(standardFileProvider); ok {
		if fd, ok := sp.standardFile(filename); ok {
			log.Debug("using bundled well-known file")
			return fd, nil
		}
	}

	in, err := db.tree.Open(filename)
	if err != nil {
		msg := db.tree.LastErrorMessage()
		if db.collector != nil {
			db.collector.RecordError(filename, -1, 0, msg)
		}
		log.WithError(err).Debug("could not open source file")
		return nil, fmt.Errorf("%w: %w", ErrFileNotLoadable, err)
	}
	defer func() {
		_ = in.Close()
	}()

	handler := reporter.NewHandler(db.reporter())
	file, err := parser.Parse(filename, zerocopy.NewReader(in), handler)
	if err == nil {
		var res parser.Result
		res, err = parser.ResultFromAST(file, true, handler)
		if err == nil {
			fd := res.FileDescriptorProto()
			fd.Name = proto.String(filename)
			log.Debug("parsed source file")
			return fd, nil
		}
	}
	if !errors.Is(err, reporter.ErrInvalidSource) {
		// Failures not tied to a source position, such as read errors, are
		// not seen by the reporter.
		var posErr reporter.ErrorWithPos
		if !errors.As(err, &posErr) && db.collector != nil {
			db.collector.RecordError(filename, -1, 0, err.Error())
		}
	}
	log.WithError(err).Debug("could not parse source file")
	return nil, fmt.Errorf("%w: %s: %w", ErrFileNotLoadable, filename, err)
}

func (db *SourceTreeDescriptorDatabase) reporter() reporter.Reporter {
	if db.collector == nil {
		return CollectorReporter(discardCollector{})
	}
	return CollectorReporter(db.collector)
}

// BuildFileDescriptorSet returns a set holding the named files and every
// file they import, directly or indirectly. Each file appears once.
func (db *SourceTreeDescriptorDatabase) BuildFileDescriptorSet(roots ...string) (*descriptorpb.FileDescriptorSet, error) {
	set := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]struct{}, len(roots))
	stack := make([]*descriptorpb.FileDescriptorProto, 0, len(roots))
	for _, root := range roots {
		if _, ok := seen[root]; ok {
			continue
		}
		fd, err := db.FindFileByName(root)
		if err != nil {
			return nil, err
		}
		stack = append(stack, fd)
		seen[root] = struct{}{}
	}
	for len(stack) > 0 {
		fd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		set.File = append(set.File, fd)
		for _, dep := range fd.GetDependency() {
			if _, ok := seen[dep]; ok {
				continue
			}
			depFd, err := db.FindFileByName(dep)
			if err != nil {
				return nil, err
			}
			stack = append(stack, depFd)
			seen[dep] = struct{}{}
		}
	}
	return set, nil
}

type discardCollector struct{}

func (discardCollector) RecordError(string, int, int, string)   {}
func (discardCollector) RecordWarning(string, int, int, string) {}
