// Package engine finds the enrolled face nearest to a probe.
//
// Matching is pure CPU work over the candidate slice: no I/O, no shared state.
// Large candidate sets are split into shards scanned concurrently; merging
// picks the smallest distance and, among equal distances, the lowest index,
// which is exactly what a single sequential scan would select.
package engine

import (
	"context"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"punchclock/internal/biometric/models"
)

// DefaultThreshold is the maximum Euclidean distance (exclusive) accepted as a match.
const DefaultThreshold = 0.6

const defaultShardSize = 2048

// Result is the outcome of one scan. Match is nil when no candidate is
// strictly below Threshold. BestDistance is the smallest distance seen among
// valid candidates whether or not it matched; it is meaningless when Compared is 0.
type Result struct {
	Match        *models.Entry
	Index        int
	BestDistance float64
	Threshold    float64
	Compared     int
	Skipped      int
}

// HasDistance reports whether at least one valid candidate was compared.
func (r Result) HasDistance() bool {
	return r.Compared > 0
}

// Engine holds tuning for matching.
type Engine struct {
	threshold float64
	shardSize int
	logger    *slog.Logger
}

type Option func(*Engine)

// WithThreshold overrides DefaultThreshold. Non-positive values are ignored.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// WithShardSize sets how many candidates one goroutine scans. Non-positive values are ignored.
func WithShardSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.shardSize = size
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		threshold: DefaultThreshold,
		shardSize: defaultShardSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured acceptance threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// FindBestMatch scans candidates sequentially.
// The probe is validated before any distance is computed.
func (e *Engine) FindBestMatch(probe models.Template, candidates []models.Entry) (Result, error) {
	if err := probe.Validate(); err != nil {
		return Result{}, err
	}
	res := e.scan(probe, candidates, 0)
	res.Threshold = e.threshold
	return res, nil
}

// FindBestMatchParallel shards candidates across goroutines when the set is
// larger than one shard. The result is identical to FindBestMatch.
func (e *Engine) FindBestMatchParallel(ctx context.Context, probe models.Template, candidates []models.Entry) (Result, error) {
	if err := probe.Validate(); err != nil {
		return Result{}, err
	}
	if len(candidates) <= e.shardSize {
		res := e.scan(probe, candidates, 0)
		res.Threshold = e.threshold
		return res, nil
	}

	shards := (len(candidates) + e.shardSize - 1) / e.shardSize
	partials := make([]Result, shards)

	g, ctx := errgroup.WithContext(ctx)
	for i := range shards {
		lo := i * e.shardSize
		hi := min(lo+e.shardSize, len(candidates))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			partials[i] = e.scan(probe, candidates[lo:hi], lo)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	merged := merge(partials)
	merged.Threshold = e.threshold
	return merged, nil
}

// scan is the reference algorithm. offset converts shard-local indexes to global ones.
func (e *Engine) scan(probe models.Template, candidates []models.Entry, offset int) Result {
	res := Result{Index: -1, BestDistance: math.Inf(1)}
	for i := range candidates {
		c := &candidates[i]
		if err := c.Template.Validate(); err != nil {
			res.Skipped++
			e.logger.Warn("skipping malformed enrolled template",
				"employee_id", c.EmployeeID,
				"length", len(c.Template),
				"error", err,
			)
			continue
		}
		res.Compared++
		d := Distance(probe, c.Template)
		if d < res.BestDistance {
			res.BestDistance = d
			if d < e.threshold {
				res.Match = c
				res.Index = offset + i
			}
		}
	}
	return res
}

// merge combines shard results that are ordered by shard position.
func merge(partials []Result) Result {
	out := Result{Index: -1, BestDistance: math.Inf(1)}
	for _, p := range partials {
		out.Compared += p.Compared
		out.Skipped += p.Skipped
		// strictly-less keeps the earlier shard on ties
		if p.BestDistance < out.BestDistance {
			out.BestDistance = p.BestDistance
			out.Match = p.Match
			out.Index = p.Index
		}
	}
	return out
}

// Distance is the Euclidean distance between two templates of equal length.
func Distance(a, b models.Template) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
