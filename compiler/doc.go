// Package compiler loads .proto sources into descriptors.
//
// A SourceTree maps file names, as used in import statements, to file
// contents. VirtualSourceTree holds files in memory; DiskSourceTree reads
// them from a filesystem. A SourceTreeDescriptorDatabase parses files from a
// tree into unlinked descriptor protos, and a DescriptorPool links those
// into full descriptors, building imports on demand.
//
// Parsing and linking are done by github.com/bufbuild/protocompile. Problems
// found along the way are not returned as errors one at a time; they are
// reported to a MultiFileErrorCollector, and the caller inspects the
// collector once the operation is over. SimpleErrorCollector keeps them in
// memory, in the order they were reported.
//
// Nothing in this package is safe for concurrent use. To compile
// independent sets of files in parallel, give each its own tree, collector,
// database, and pool, as CompileAll does.
package compiler
