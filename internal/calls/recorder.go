package calls

import (
	"context"
	"time"

	"callflow-platform/internal/interpreter"
	"callflow-platform/pkg/logger"

	"github.com/google/uuid"
)

// Runner is the interpreter entry point the recorder wraps.
type Runner interface {
	Handle(ctx context.Context, ev interpreter.Event) interpreter.Result
}

// Recorder runs each callback through Next and appends a Leg for it. A
// failed append is logged; it never changes what the caller hears.
type Recorder struct {
	Next Runner
	Repo Repository
	Now  func() time.Time
}

func NewRecorder(next Runner, repo Repository) *Recorder {
	return &Recorder{Next: next, Repo: repo, Now: time.Now}
}

func (r *Recorder) Handle(ctx context.Context, ev interpreter.Event) interpreter.Result {
	res := r.Next.Handle(ctx, ev)
	if r.Repo == nil || ev.CallID == "" {
		return res
	}
	l := legFrom(ev, res)
	l.ID = uuid.NewString()
	l.CreatedAt = r.Now().UTC()
	if err := r.Repo.Append(ctx, l); err != nil {
		logger.From(ctx).Warn("call leg not recorded", "call_id", ev.CallID, "err", err)
	}
	return res
}
