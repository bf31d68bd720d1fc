package stage

import (
	"context"
	"sync"
)

// batchJob is one unit of work handed to the dispatcher: call index i
// of fn, recording whatever fn returns.
type batchJob struct {
	index int
	run   func(ctx context.Context) error
}

// dispatch runs jobs with up to concurrency workers in flight at
// once, collecting one error per job (nil on success) indexed by job
// order. Modeled on the teacher's worker-pool shape
// (pkg/queue/worker.go's goroutine+WaitGroup+stop-channel pattern),
// simplified: no durable claims, no heartbeats, no orphan detection —
// the only shared mutable state a stage run touches is the Store and
// the usage tracker, both already safe under concurrent writes.
func dispatch(ctx context.Context, jobs []batchJob, concurrency int) []error {
	if concurrency < 1 {
		concurrency = 1
	}
	errs := make([]error, len(jobs))

	jobCh := make(chan batchJob)
	var wg sync.WaitGroup

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				errs[job.index] = job.run(ctx)
			}
		}()
	}

	for _, j := range jobs {
		select {
		case jobCh <- j:
		case <-ctx.Done():
			errs[j.index] = ctx.Err()
		}
	}
	close(jobCh)
	wg.Wait()

	return errs
}
