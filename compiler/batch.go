package compiler

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/jhump/protonative/logging"
)

// Job is an independent unit of compilation: a set of in-memory sources and
// the files among them to build.
type Job struct {
	// Sources maps file names to contents.
	Sources map[string][]byte
	// Files names the files to build.
	Files []string
}

// JobResult is the outcome of one Job.
type JobResult struct {
	// Files holds the built descriptors, in the order requested. It is
	// only complete if Err is nil.
	Files []protoreflect.FileDescriptor
	// Diagnostics holds every error and warning reported while loading
	// and linking, in the order reported.
	Diagnostics []FileLoadError
	// Err is the first failure, if any.
	Err error
}

// BatchOptions configures CompileAll.
type BatchOptions struct {
	// Parallelism bounds how many jobs run at once. If not positive,
	// runtime.GOMAXPROCS(0) is used.
	Parallelism int
	// StandardImports is passed on to each job's DescriptorPool.
	StandardImports bool
	// Logger is used for debug output, tagged with each job's index. If
	// nil, the process-wide logger from the logging package is used.
	Logger logrus.FieldLogger
}

// CompileAll runs the jobs concurrently. None of the components in this
// package are safe for concurrent use, so every job gets its own source
// tree, error collector, database, and pool.
//
// The result for jobs[i] is at index i. A failing job does not stop the
// others. If ctx is done before every job has started, the jobs that did
// not start get ctx's error in JobResult.Err and CompileAll returns it too.
func CompileAll(ctx context.Context, jobs []Job, opts BatchOptions) ([]JobResult, error) {
	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	log := logging.Or(opts.Logger)

	results := make([]JobResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(limit)
	var skipped atomic.Bool
	for i, job := range jobs {
		if ctx.Err() != nil {
			skipped.Store(true)
			break
		}
		// Go blocks while limit jobs are running, so ctx is checked again
		// once the job has a slot.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				skipped.Store(true)
				results[i] = JobResult{Err: err}
				return nil
			}
			results[i] = runJob(ctx, job, opts, log.WithField("job", i))
			return nil
		})
	}
	_ = g.Wait()
	if skipped.Load() {
		return results, ctx.Err()
	}
	return results, nil
}

func runJob(ctx context.Context, job Job, opts BatchOptions, log logrus.FieldLogger) JobResult {
	tree := NewVirtualSourceTree()
	for name, contents := range job.Sources {
		tree.AddFile(name, contents)
	}
	collector := NewSimpleErrorCollector()
	db := NewSourceTreeDescriptorDatabase(tree)
	db.RecordErrorsTo(collector)
	db.SetLogger(log)
	pool := NewDescriptorPool(db, PoolOptions{
		StandardImports: opts.StandardImports,
		Collector:       collector,
		Logger:          log,
	})

	var res JobResult
	for _, name := range job.Files {
		fd, err := pool.FindFileByName(ctx, name)
		if err != nil {
			res.Err = err
			break
		}
		res.Files = append(res.Files, fd)
	}
	res.Diagnostics = collector.Drain()
	log.WithField("diagnostics", len(res.Diagnostics)).Debug("job finished")
	return res
}
