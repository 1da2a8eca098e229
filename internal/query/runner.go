package query

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rainhead/lifelight-go/internal/logging"
)

// Runner executes requests fire-and-forget and delivers results with
// last-issued-wins supersession: when an older in-flight query
// completes after a newer one was issued, its result is discarded by
// sequence-number comparison rather than by cancelling the query.
type Runner struct {
	engine *Engine
	logger *slog.Logger

	seq       atomic.Uint64 // last issued
	delivered atomic.Uint64 // highest delivered

	mu      sync.Mutex
	deliver func(Result)
}

// NewRunner wires a runner to engine; deliver receives each surviving
// result, serialized by the runner's lock.
func NewRunner(engine *Engine, deliver func(Result)) *Runner {
	return &Runner{
		engine:  engine,
		logger:  logging.ForService("query"),
		deliver: deliver,
	}
}

// Issue starts req asynchronously and returns its sequence number.
// Any result from a request issued earlier that has not yet completed
// is superseded.
func (r *Runner) Issue(ctx context.Context, req Request) uint64 {
	seq := r.seq.Add(1)
	go r.run(ctx, seq, req)
	return seq
}

func (r *Runner) run(ctx context.Context, seq uint64, req Request) {
	rows, err := r.engine.Photos(ctx, req)
	if err != nil {
		r.logger.Error("query failed", "seq", seq, "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.delivered.Load() >= seq {
		r.logger.Debug("discarding superseded result", "seq", seq)
		return
	}
	r.delivered.Store(seq)
	r.deliver(Result{Seq: seq, Rows: rows})
}
