package compiler

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/bufbuild/protocompile/reporter"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/descriptorpb"
)

func newVirtualDB(sources map[string]string) (*SourceTreeDescriptorDatabase, *SimpleErrorCollector) {
	tree := NewVirtualSourceTree()
	for name, contents := range sources {
		tree.AddFile(name, []byte(contents))
	}
	collector := NewSimpleErrorCollector()
	db := NewSourceTreeDescriptorDatabase(tree)
	db.RecordErrorsTo(collector)
	return db, collector
}

func fileNames(set *descriptorpb.FileDescriptorSet) []string {
	names := make([]string, len(set.GetFile()))
	for i, fd := range set.GetFile() {
		names[i] = fd.GetName()
	}
	return names
}

func TestSourceTreeDescriptorDatabase_FindFileByName(t *testing.T) {
	db, collector := newVirtualDB(map[string]string{
		"pkg/a.proto": `
			syntax = "proto3";
			package pkg;
			import "pkg/b.proto";
			message A { B b = 1; }`,
	})

	fd, err := db.FindFileByName("pkg/a.proto")
	require.NoError(t, err)
	assert.Equal(t, "pkg/a.proto", fd.GetName())
	assert.Equal(t, "pkg", fd.GetPackage())
	assert.Equal(t, "proto3", fd.GetSyntax())
	assert.Equal(t, []string{"pkg/b.proto"}, fd.GetDependency())
	require.Len(t, fd.GetMessageType(), 1)
	msg := fd.GetMessageType()[0]
	assert.Equal(t, "A", msg.GetName())
	require.Len(t, msg.GetField(), 1)
	// Not linked: the type name is left as written.
	assert.Equal(t, "B", msg.GetField()[0].GetTypeName())
	assert.Empty(t, collector.Errors())
}

func TestSourceTreeDescriptorDatabase_MissingFile(t *testing.T) {
	db, collector := newVirtualDB(nil)

	fd, err := db.FindFileByName("b.proto")
	assert.Nil(t, fd)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotLoadable)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, []FileLoadError{
		{Filename: "b.proto", Line: -1, Column: 0, Message: FileNotFoundMessage},
	}, collector.Errors())
}

func TestSourceTreeDescriptorDatabase_ParseError(t *testing.T) {
	db, collector := newVirtualDB(map[string]string{
		"bad.proto": "syntax = \"proto3\";\nmessage Foo {\n  string name = 1\n}\n",
	})

	_, err := db.FindFileByName("bad.proto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFileNotLoadable)
	assert.ErrorIs(t, err, reporter.ErrInvalidSource)
	assert.NotErrorIs(t, err, fs.ErrNotExist)

	require.True(t, collector.HasErrors())
	errs := collector.Errors()
	assert.Equal(t, "bad.proto", errs[0].Filename)
	assert.Positive(t, errs[0].Line)
	assert.Positive(t, errs[0].Column)
	assert.NotEmpty(t, errs[0].Message)
}

func TestSourceTreeDescriptorDatabase_NoCollector(t *testing.T) {
	tree := NewVirtualSourceTree()
	tree.AddFile("bad.proto", []byte("message {"))
	db := NewSourceTreeDescriptorDatabase(tree)

	_, err := db.FindFileByName("bad.proto")
	assert.ErrorIs(t, err, ErrFileNotLoadable)
	_, err = db.FindFileByName("missing.proto")
	assert.ErrorIs(t, err, ErrFileNotLoadable)
}

func TestSourceTreeDescriptorDatabase_Logging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	db, _ := newVirtualDB(map[string]string{"a.proto": `syntax = "proto3";`})
	db.SetLogger(logger)

	_, err := db.FindFileByName("a.proto")
	require.NoError(t, err)
	_, err = db.FindFileByName("missing.proto")
	require.Error(t, err)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "a.proto", entries[0].Data["file"])
	assert.Equal(t, "missing.proto", entries[1].Data["file"])
	assert.Contains(t, entries[1].Data, logrus.ErrorKey)
}

func TestBuildFileDescriptorSet(t *testing.T) {
	db, collector := newVirtualDB(map[string]string{
		"root.proto": `
			syntax = "proto3";
			import "imported.proto";
			message Test { Imported imported = 1; }`,
		"imported.proto": `
			syntax = "proto3";
			message Imported {}`,
	})

	set, err := db.BuildFileDescriptorSet("root.proto")
	require.NoError(t, err)
	require.Len(t, set.GetFile(), 2)
	assert.Equal(t, []string{"root.proto", "imported.proto"}, fileNames(set))
	assert.Equal(t, "Test", set.GetFile()[0].GetMessageType()[0].GetName())
	assert.Empty(t, collector.Errors())
}

func TestBuildFileDescriptorSet_SharedImports(t *testing.T) {
	db, _ := newVirtualDB(map[string]string{
		"a.proto": `syntax = "proto3"; import "b.proto"; import "c.proto";`,
		"b.proto": `syntax = "proto3"; import "c.proto";`,
		"c.proto": `syntax = "proto3";`,
		"d.proto": `syntax = "proto3";`,
	})

	set, err := db.BuildFileDescriptorSet("a.proto")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.proto", "c.proto", "b.proto"}, fileNames(set))

	// Repeated roots and roots reachable from other roots appear once.
	set, err = db.BuildFileDescriptorSet("c.proto", "a.proto", "c.proto", "d.proto")
	require.NoError(t, err)
	names := fileNames(set)
	assert.ElementsMatch(t, []string{"a.proto", "b.proto", "c.proto", "d.proto"}, names)
}

func TestBuildFileDescriptorSet_MissingImport(t *testing.T) {
	db, collector := newVirtualDB(map[string]string{
		"a.proto": `syntax = "proto3"; import "gone.proto";`,
	})

	set, err := db.BuildFileDescriptorSet("a.proto")
	assert.Nil(t, set)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileNotLoadable))
	assert.Equal(t, []FileLoadError{
		{Filename: "gone.proto", Line: -1, Column: 0, Message: FileNotFoundMessage},
	}, collector.Errors())
}

func TestBuildFileDescriptorSet_WellKnownTypes(t *testing.T) {
	tree := NewDiskSourceTreeFs(newMemFs(t, map[string]string{
		"protos/test.proto": `
			syntax = "proto3";
			import "google/protobuf/timestamp.proto";
			import "google/protobuf/any.proto";
			import "google/protobuf/duration.proto";
			message Test {
				google.protobuf.Timestamp ts = 1;
				google.protobuf.Any any = 2;
				google.protobuf.Duration dur = 3;
			}`,
	}))
	tree.MapPath("", "protos")
	tree.MapWellKnownTypes()
	collector := NewSimpleErrorCollector()
	db := NewSourceTreeDescriptorDatabase(tree)
	db.RecordErrorsTo(collector)

	set, err := db.BuildFileDescriptorSet("test.proto")
	require.NoError(t, err)
	assert.Len(t, set.GetFile(), 4)
	assert.ElementsMatch(t, []string{
		"test.proto",
		"google/protobuf/timestamp.proto",
		"google/protobuf/any.proto",
		"google/protobuf/duration.proto",
	}, fileNames(set))
	assert.Empty(t, collector.Errors())

	// The bundled files are not visible through the tree itself.
	_, err = tree.Open("google/protobuf/any.proto")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}
