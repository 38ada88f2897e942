// analyzer Lambda processes queued analyzer runs, one per invocation batch.
package main

import (
	"context"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/autometric/autometric/internal/analyzer"
	intlambda "github.com/autometric/autometric/internal/lambda"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// request is the scheduled-invocation payload. MaxRuns defaults to 1.
type request struct {
	MaxRuns int `json:"maxRuns,omitempty"`
}

type response struct {
	Processed int                   `json:"processed"`
	Reports   []*analyzer.RunReport `json:"reports"`
}

func handle(ctx context.Context, req request) (response, error) {
	d, err := getDeps()
	if err != nil {
		return response{}, err
	}

	maxRuns := req.MaxRuns
	if maxRuns <= 0 {
		maxRuns = 1
	}

	var resp response
	for resp.Processed < maxRuns {
		report, err := d.Worker.RunOnce(ctx)
		if err != nil {
			return resp, err
		}
		if !report.Picked {
			break
		}
		resp.Processed++
		resp.Reports = append(resp.Reports, report)
	}
	return resp, nil
}

func main() {
	awslambda.Start(handle)
}
