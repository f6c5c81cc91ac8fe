package aippt

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// probeJob is one image to probe with its position in the result.
type probeJob struct {
	index  int
	src    string
	remote bool
}

type probeResult struct {
	index int
	probe *imageProbe
}

// probeAll probes local and remote images in parallel and returns them in input order, local first.
func (l *ImageLoader) probeAll(ctx context.Context, local, remote []string) ([]*imageProbe, error) {
	var jobs []probeJob
	for _, src := range local {
		jobs = append(jobs, probeJob{index: len(jobs), src: src})
	}
	for _, src := range remote {
		jobs = append(jobs, probeJob{index: len(jobs), src: src, remote: true})
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	jobCh := make(chan probeJob, len(jobs))
	resultCh := make(chan probeResult, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	numWorkers := min(l.concurrency, len(jobs))

	for range numWorkers {
		g.Go(func() error {
			for job := range jobCh {
				var (
					p   *imageProbe
					err error
				)
				if job.remote {
					p, err = l.probeRemote(ctx, job.src)
				} else {
					p, err = probeLocal(job.src)
				}
				if err != nil {
					return fmt.Errorf("failed to probe image %s: %w", job.src, err)
				}
				select {
				case resultCh <- probeResult{index: job.index, probe: p}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			jobCh <- job
		}
	}()

	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(resultCh)

	probes := make([]*imageProbe, len(jobs))
	for r := range resultCh {
		probes[r.index] = r.probe
	}
	return probes, nil
}
