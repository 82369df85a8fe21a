package compiler

import (
	"bytes"

	"github.com/jhump/protonative/zerocopy"
)

// SourceTree resolves logical file names, as they appear in import
// statements, to their contents.
type SourceTree interface {
	// Open returns a stream over the named file. The caller owns the stream
	// and must close it. If the file cannot be opened, Open returns a
	// *FileOpenError whose message is also available from LastErrorMessage.
	Open(filename string) (zerocopy.InputStreamCloser, error)
	// LastErrorMessage describes why the most recent call to Open failed.
	LastErrorMessage() string
}

// VirtualSourceTree is an in-memory SourceTree. File names are matched
// exactly; no path normalization is done. The zero value is an empty tree.
type VirtualSourceTree struct {
	files map[string][]byte
}

var _ SourceTree = (*VirtualSourceTree)(nil)

// NewVirtualSourceTree returns an empty tree.
func NewVirtualSourceTree() *VirtualSourceTree {
	return &VirtualSourceTree{files: map[string][]byte{}}
}

// AddFile adds a file with the given contents, replacing any file already
// registered under that name. The tree keeps its own copy of contents.
func (t *VirtualSourceTree) AddFile(filename string, contents []byte) {
	if t.files == nil {
		t.files = map[string][]byte{}
	}
	t.files[filename] = bytes.Clone(contents)
}

func (t *VirtualSourceTree) Open(filename string) (zerocopy.InputStreamCloser, error) {
	contents, ok := t.files[filename]
	if !ok {
		return nil, errFileNotFound(filename)
	}
	return zerocopy.NewSliceInputStream(contents, 0), nil
}

// LastErrorMessage always returns FileNotFoundMessage, since a missing file
// is the only way Open can fail.
func (t *VirtualSourceTree) LastErrorMessage() string {
	return FileNotFoundMessage
}
