package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func newTestPool(sources map[string]string, standardImports bool) (*DescriptorPool, *VirtualSourceTree, *SimpleErrorCollector) {
	tree := NewVirtualSourceTree()
	for name, contents := range sources {
		tree.AddFile(name, []byte(contents))
	}
	collector := NewSimpleErrorCollector()
	db := NewSourceTreeDescriptorDatabase(tree)
	db.RecordErrorsTo(collector)
	pool := NewDescriptorPool(db, PoolOptions{StandardImports: standardImports, Collector: collector})
	return pool, tree, collector
}

var poolSources = map[string]string{
	"foo/a.proto": `
		syntax = "proto3";
		package foo;
		import "foo/b.proto";
		message A {
			B b = 1;
			string name = 2;
		}`,
	"foo/b.proto": `
		syntax = "proto3";
		package foo;
		message B {
			enum Kind {
				KIND_UNSPECIFIED = 0;
			}
			Kind kind = 1;
		}`,
}

func TestDescriptorPool_FindFileByName(t *testing.T) {
	ctx := context.Background()
	pool, _, collector := newTestPool(poolSources, false)

	fd, err := pool.FindFileByName(ctx, "foo/a.proto")
	require.NoError(t, err)
	assert.Equal(t, "foo/a.proto", fd.Path())
	require.Equal(t, 1, fd.Imports().Len())
	assert.Equal(t, "foo/b.proto", fd.Imports().Get(0).Path())

	field := fd.Messages().ByName("A").Fields().ByName("b")
	require.NotNil(t, field)
	assert.Equal(t, protoreflect.FullName("foo.B"), field.Message().FullName())

	// The import was built along the way and is shared.
	b, err := pool.FindFileByName(ctx, "foo/b.proto")
	require.NoError(t, err)
	assert.Equal(t, b.Path(), field.Message().ParentFile().Path())
	assert.NotNil(t, b.Messages().ByName("B"))
	assert.Empty(t, collector.Errors())
}

func TestDescriptorPool_FindByName(t *testing.T) {
	ctx := context.Background()
	pool, _, _ := newTestPool(poolSources, false)
	_, err := pool.FindFileByName(ctx, "foo/a.proto")
	require.NoError(t, err)

	md, err := pool.FindMessageByName("foo.A")
	require.NoError(t, err)
	assert.Equal(t, protoreflect.Name("A"), md.Name())

	d, err := pool.FindDescriptorByName("foo.B.KIND_UNSPECIFIED")
	require.NoError(t, err)
	assert.Implements(t, (*protoreflect.EnumValueDescriptor)(nil), d)

	_, err = pool.FindMessageByName("foo.A.name")
	assert.EqualError(t, err, "foo.A.name is a field, not a message")
	_, err = pool.FindMessageByName("foo.B.Kind")
	assert.EqualError(t, err, "foo.B.Kind is an enum, not a message")
	_, err = pool.FindMessageByName("foo.Missing")
	assert.Error(t, err)

	count := 0
	pool.Files().RangeFiles(func(protoreflect.FileDescriptor) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)
}

func TestDescriptorPool_MissingImport(t *testing.T) {
	ctx := context.Background()
	pool, _, collector := newTestPool(map[string]string{
		"a.proto": `syntax = "proto3"; import "missing.proto";`,
	}, false)

	fd, err := pool.FindFileByName(ctx, "a.proto")
	assert.Nil(t, fd)
	require.Error(t, err)
	assert.Contains(t, collector.Errors(), FileLoadError{
		Filename: "missing.proto",
		Line:     -1,
		Column:   0,
		Message:  FileNotFoundMessage,
	})

	// Nothing from the failed build is kept.
	_, err = pool.Files().FindFileByPath("a.proto")
	assert.Error(t, err)
}

func TestDescriptorPool_LinkError(t *testing.T) {
	ctx := context.Background()
	pool, _, collector := newTestPool(map[string]string{
		"a.proto": `syntax = "proto3"; message A { Unknown u = 1; }`,
	}, false)

	_, err := pool.FindFileByName(ctx, "a.proto")
	require.Error(t, err)
	require.True(t, collector.HasErrors())
	assert.Equal(t, "a.proto", collector.Errors()[0].Filename)
}

func TestDescriptorPool_StandardImports(t *testing.T) {
	ctx := context.Background()
	sources := map[string]string{
		"ts.proto": `
			syntax = "proto3";
			import "google/protobuf/timestamp.proto";
			message Event { google.protobuf.Timestamp at = 1; }`,
	}

	pool, _, collector := newTestPool(sources, true)
	fd, err := pool.FindFileByName(ctx, "ts.proto")
	require.NoError(t, err)
	at := fd.Messages().ByName("Event").Fields().ByName("at")
	assert.Equal(t, protoreflect.FullName("google.protobuf.Timestamp"), at.Message().FullName())
	assert.Empty(t, collector.Errors())

	pool, _, collector = newTestPool(sources, false)
	_, err = pool.FindFileByName(ctx, "ts.proto")
	require.Error(t, err)
	assert.Contains(t, collector.Errors(), FileLoadError{
		Filename: "google/protobuf/timestamp.proto",
		Line:     -1,
		Column:   0,
		Message:  FileNotFoundMessage,
	})
}

func TestDescriptorPool_BuildsOnce(t *testing.T) {
	ctx := context.Background()
	pool, tree, _ := newTestPool(map[string]string{
		"a.proto": `syntax = "proto3"; message First {}`,
	}, false)

	first, err := pool.FindFileByName(ctx, "a.proto")
	require.NoError(t, err)

	tree.AddFile("a.proto", []byte(`syntax = "proto3"; message Second {}`))
	again, err := pool.FindFileByName(ctx, "a.proto")
	require.NoError(t, err)
	assert.Same(t, first, again)
	assert.NotNil(t, again.Messages().ByName("First"))
	assert.Nil(t, again.Messages().ByName("Second"))
}

func TestDescriptorPool_FileDescriptorSet(t *testing.T) {
	ctx := context.Background()
	pool, _, _ := newTestPool(map[string]string{
		"a.proto": `syntax = "proto3"; import "b.proto"; message A { B b = 1; }`,
		"b.proto": `syntax = "proto3"; message B {}`,
		"0.proto": `syntax = "proto3";`,
	}, false)
	for _, name := range []string{"a.proto", "0.proto"} {
		_, err := pool.FindFileByName(ctx, name)
		require.NoError(t, err)
	}

	set := pool.FileDescriptorSet()
	assert.Equal(t, []string{"0.proto", "b.proto", "a.proto"}, fileNames(set))
	// Built descriptors are linked.
	a := set.GetFile()[2]
	assert.Equal(t, ".B", a.GetMessageType()[0].GetField()[0].GetTypeName())
}
