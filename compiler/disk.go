package compiler

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/jhump/protonative/zerocopy"
)

const invalidVirtualPathMessage = `Backslashes, consecutive slashes, ".", or ".." are not allowed in the virtual path`

// DiskSourceTree is a SourceTree that loads files from a filesystem.
// Locations in the tree are mapped onto directories (or single files) in
// the filesystem with MapPath.
//
// Opened files are read through a zerocopy.ReaderStream that owns the
// underlying file handle; closing the stream closes the file.
type DiskSourceTree struct {
	fs             afero.Fs
	mappings       []mapping
	lastErr        string
	wellKnownTypes bool
}

type mapping struct {
	virtualPath string
	diskPath    string
}

var _ SourceTree = (*DiskSourceTree)(nil)

// NewDiskSourceTree returns a tree over the operating system's filesystem.
func NewDiskSourceTree() *DiskSourceTree {
	return NewDiskSourceTreeFs(afero.NewOsFs())
}

// NewDiskSourceTreeFs returns a tree over the given filesystem.
func NewDiskSourceTreeFs(fsys afero.Fs) *DiskSourceTree {
	return &DiskSourceTree{fs: fsys}
}

// MapPath maps diskPath, a file or directory, to virtualPath in the tree.
// An empty virtualPath maps diskPath to the root of the tree.
//
// If several mappings apply to a file, they are tried in the order they
// were added. For example, after
//
//	tree.MapPath("bar", "foo/bar")
//	tree.MapPath("", "baz")
//
// opening "bar/qux" tries "foo/bar/qux" and then "baz/bar/qux", returning
// the first that can be opened.
func (t *DiskSourceTree) MapPath(virtualPath, diskPath string) {
	t.mappings = append(t.mappings, mapping{virtualPath: virtualPath, diskPath: diskPath})
}

// MapWellKnownTypes makes the well-known files under google/protobuf/, as
// bundled with the protobuf runtime, available to a database over this
// tree. They take precedence over mapped files of the same name. They are
// served as descriptors, so Open does not see them.
func (t *DiskSourceTree) MapWellKnownTypes() {
	t.wellKnownTypes = true
}

func (t *DiskSourceTree) standardFile(filename string) (*descriptorpb.FileDescriptorProto, bool) {
	if !t.wellKnownTypes {
		return nil, false
	}
	res, err := standardImports.FindFileByPath(filename)
	if err != nil || res.Desc == nil {
		return nil, false
	}
	return protodesc.ToFileDescriptorProto(res.Desc), true
}

// VirtualFileToDiskFile returns the first existing disk file that the given
// virtual file maps to.
func (t *DiskSourceTree) VirtualFileToDiskFile(virtualFile string) (string, bool) {
	if !validVirtualPath(virtualFile) {
		return "", false
	}
	for _, m := range t.mappings {
		diskFile, ok := applyMapping(virtualFile, m.virtualPath, m.diskPath)
		if !ok {
			continue
		}
		if info, err := t.fs.Stat(filepath.FromSlash(diskFile)); err == nil && !info.IsDir() {
			return diskFile, true
		}
	}
	return "", false
}

func (t *DiskSourceTree) Open(filename string) (zerocopy.InputStreamCloser, error) {
	if !validVirtualPath(filename) {
		return nil, t.fail(&FileOpenError{Filename: filename, Message: invalidVirtualPathMessage})
	}
	for _, m := range t.mappings {
		diskFile, ok := applyMapping(filename, m.virtualPath, m.diskPath)
		if !ok {
			continue
		}
		f, err := t.openDiskFile(diskFile)
		if err == nil {
			return zerocopy.NewReaderStream(f), nil
		}
		if errors.Is(err, fs.ErrPermission) {
			return nil, t.fail(&FileOpenError{
				Filename: filename,
				Message:  "Read access is denied for file: " + diskFile,
				Err:      err,
			})
		}
	}
	return nil, t.fail(errFileNotFound(filename))
}

func (t *DiskSourceTree) openDiskFile(diskFile string) (afero.File, error) {
	name := filepath.FromSlash(diskFile)
	f, err := t.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err == nil && info.IsDir() {
		_ = f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func (t *DiskSourceTree) fail(err *FileOpenError) error {
	t.lastErr = err.Message
	return err
}

// LastErrorMessage returns the message of the most recent failed Open.
func (t *DiskSourceTree) LastErrorMessage() string {
	return t.lastErr
}

// validVirtualPath reports whether filename is already in canonical form:
// no backslashes, no empty components, and no "." or ".." components.
// Leading and trailing slashes are allowed, as in the canonical form.
func validVirtualPath(filename string) bool {
	if strings.Contains(filename, `\`) {
		return false
	}
	trimmed := strings.TrimSuffix(strings.TrimPrefix(filename, "/"), "/")
	if trimmed == "" {
		return true
	}
	for _, part := range strings.Split(trimmed, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func containsParentReference(p string) bool {
	return p == ".." ||
		strings.HasPrefix(p, "../") ||
		strings.HasSuffix(p, "/..") ||
		strings.Contains(p, "/../")
}

// applyMapping translates filename from a location under oldPrefix to the
// same location under newPrefix.
func applyMapping(filename, oldPrefix, newPrefix string) (string, bool) {
	if oldPrefix == "" {
		// Root mapping: anything relative can be mapped.
		if strings.HasPrefix(filename, "/") {
			return "", false
		}
		return joinPrefix(newPrefix, filename), true
	}
	if !strings.HasPrefix(filename, oldPrefix) {
		return "", false
	}
	if len(filename) == len(oldPrefix) {
		return newPrefix, true
	}
	var rest string
	switch {
	case filename[len(oldPrefix)] == '/':
		rest = filename[len(oldPrefix)+1:]
	case strings.HasSuffix(oldPrefix, "/"):
		rest = filename[len(oldPrefix):]
	default:
		// oldPrefix matched only part of a path component.
		return "", false
	}
	if containsParentReference(rest) {
		return "", false
	}
	return joinPrefix(newPrefix, rest), true
}

func joinPrefix(prefix, rest string) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + rest
}
