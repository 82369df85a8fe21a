package compiler

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bufbuild/protocompile"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protonative/logging"
)

// PoolOptions configures a DescriptorPool. The zero value is usable.
type PoolOptions struct {
	// StandardImports makes the well-known files under google/protobuf/
	// available to every file, as bundled with the protobuf runtime. They
	// take precedence over files of the same name in the database.
	StandardImports bool
	// Collector receives link errors and warnings. Errors from parsing
	// are reported by the database to its own collector.
	Collector MultiFileErrorCollector
	// Logger is used for debug output. If nil, the process-wide logger
	// from the logging package is used.
	Logger logrus.FieldLogger
}

// DescriptorPool builds linked descriptors on demand from the file
// descriptor protos in a DescriptorDatabase. Each file is built once;
// later lookups, including as an import of another file, return the same
// descriptor.
//
// The pool borrows the database, which must stay usable for as long as the
// pool is. A DescriptorPool is not safe for concurrent use.
type DescriptorPool struct {
	db    DescriptorDatabase
	opts  PoolOptions
	files *protoregistry.Files

	// mu serializes calls into db and opts.Collector, which may come from
	// the compiler's own goroutines.
	mu sync.Mutex
}

var standardImports = protocompile.WithStandardImports(
	protocompile.ResolverFunc(func(string) (protocompile.SearchResult, error) {
		return protocompile.SearchResult{}, protoregistry.NotFound
	}),
)

// NewDescriptorPool returns an empty pool backed by db.
func NewDescriptorPool(db DescriptorDatabase, opts PoolOptions) *DescriptorPool {
	return &DescriptorPool{db: db, opts: opts, files: &protoregistry.Files{}}
}

// FindFileByName returns the linked descriptor for the named file, building
// it and any files it imports if needed. If the file cannot be built,
// diagnostics are reported to the pool's collector and the returned error
// wraps reporter.ErrInvalidSource or the database's error.
func (p *DescriptorPool) FindFileByName(ctx context.Context, filename string) (protoreflect.FileDescriptor, error) {
	if fd, err := p.files.FindFileByPath(filename); err == nil {
		return fd, nil
	}
	log := logging.Or(p.opts.Logger).WithField("file", filename)

	c := protocompile.Compiler{
		Resolver: protocompile.ResolverFunc(p.resolve),
		Reporter: CollectorReporter(lockedCollector{mu: &p.mu, c: p.collector()}),
	}
	files, err := c.Compile(ctx, filename)
	if err != nil {
		log.WithError(err).Debug("could not build file")
		return nil, fmt.Errorf("building %q: %w", filename, err)
	}
	fd := files.FindFileByPath(filename)
	if fd == nil {
		return nil, fmt.Errorf("building %q: %w", filename, protoregistry.NotFound)
	}
	if err := p.register(fd); err != nil {
		return nil, fmt.Errorf("registering %q: %w", filename, err)
	}
	log.Debug("built file")
	return p.files.FindFileByPath(filename)
}

func (p *DescriptorPool) collector() MultiFileErrorCollector {
	if p.opts.Collector == nil {
		return discardCollector{}
	}
	return p.opts.Collector
}

// resolve serves files already in the pool, then standard imports if
// enabled, and finally protos from the database.
func (p *DescriptorPool) resolve(filename string) (protocompile.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fd, err := p.files.FindFileByPath(filename); err == nil {
		return protocompile.SearchResult{Desc: fd}, nil
	}
	if p.opts.StandardImports {
		if res, err := standardImports.FindFileByPath(filename); err == nil {
			return res, nil
		}
	}
	fd, err := p.db.FindFileByName(filename)
	if err != nil {
		return protocompile.SearchResult{}, err
	}
	return protocompile.SearchResult{Proto: fd}, nil
}

// register adds fd to the pool after any of its imports that are not
// already there.
func (p *DescriptorPool) register(fd protoreflect.FileDescriptor) error {
	if _, err := p.files.FindFileByPath(fd.Path()); err == nil {
		return nil
	}
	imports := fd.Imports()
	for i, length := 0, imports.Len(); i < length; i++ {
		if err := p.register(imports.Get(i).FileDescriptor); err != nil {
			return err
		}
	}
	return p.files.RegisterFile(fd)
}

// FindDescriptorByName returns the descriptor for the given fully-qualified
// name from the files built so far.
func (p *DescriptorPool) FindDescriptorByName(name protoreflect.FullName) (protoreflect.Descriptor, error) {
	return p.files.FindDescriptorByName(name)
}

// FindMessageByName returns the message with the given fully-qualified name
// from the files built so far.
func (p *DescriptorPool) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageDescriptor, error) {
	d, err := p.files.FindDescriptorByName(name)
	if err != nil {
		return nil, err
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is %s, not a message", name, descType(d))
	}
	return md, nil
}

func descType(d protoreflect.Descriptor) string {
	switch d := d.(type) {
	case protoreflect.FileDescriptor:
		return "a file"
	case protoreflect.MessageDescriptor:
		return "a message"
	case protoreflect.FieldDescriptor:
		if d.IsExtension() {
			return "an extension"
		}
		return "a field"
	case protoreflect.OneofDescriptor:
		return "a oneof"
	case protoreflect.EnumDescriptor:
		return "an enum"
	case protoreflect.EnumValueDescriptor:
		return "an enum value"
	case protoreflect.ServiceDescriptor:
		return "a service"
	case protoreflect.MethodDescriptor:
		return "a method"
	default:
		return fmt.Sprintf("%T", d)
	}
}

// Files returns the registry of files built so far. It must not be
// modified.
func (p *DescriptorPool) Files() *protoregistry.Files {
	return p.files
}

// FileDescriptorSet returns every file built so far as a descriptor set in
// which each file comes after the files it imports. Files that do not
// depend on each other are ordered by path.
func (p *DescriptorPool) FileDescriptorSet() *descriptorpb.FileDescriptorSet {
	var paths []string
	p.files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		paths = append(paths, fd.Path())
		return true
	})
	slices.Sort(paths)

	set := &descriptorpb.FileDescriptorSet{}
	added := make(map[string]struct{}, len(paths))
	var add func(fd protoreflect.FileDescriptor)
	add = func(fd protoreflect.FileDescriptor) {
		if _, ok := added[fd.Path()]; ok {
			return
		}
		added[fd.Path()] = struct{}{}
		imports := fd.Imports()
		for i, length := 0, imports.Len(); i < length; i++ {
			add(imports.Get(i).FileDescriptor)
		}
		set.File = append(set.File, protodesc.ToFileDescriptorProto(fd))
	}
	for _, path := range paths {
		fd, err := p.files.FindFileByPath(path)
		if err == nil {
			add(fd)
		}
	}
	return set
}

type lockedCollector struct {
	mu *sync.Mutex
	c  MultiFileErrorCollector
}

func (l lockedCollector) RecordError(filename string, line, column int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.RecordError(filename, line, column, message)
}

func (l lockedCollector) RecordWarning(filename string, line, column int, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.RecordWarning(filename, line, column, message)
}
