package reporting

import (
	"context"
	"errors"
	"strings"

	"callflow-platform/internal/calls"
	"callflow-platform/internal/interpreter"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

type Service struct {
	repo calls.Repository
}

func NewService(repo calls.Repository) *Service { return &Service{repo: repo} }

// CallsSummary folds the recorded legs of one number into per-call
// outcomes. A call's outcome is the outcome of its last callback.
func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.FlowNumber == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	legs, err := s.repo.ListByNumber(ctx, req.FlowNumber, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{FlowNumber: req.FlowNumber, Range: req.Range}
	last := map[string]interpreter.Outcome{}
	order := []string{}
	for _, l := range legs {
		out.Callbacks++
		if _, seen := last[l.CallID]; !seen {
			order = append(order, l.CallID)
		}
		last[l.CallID] = l.Outcome

		if l.MenuFallback {
			out.MenuFallbacks++
		}
		if l.Dialed {
			out.Forwards++
		}
		switch strings.ToLower(l.DialStatus) {
		case "completed", "answered":
			out.ForwardsAnswered++
		}
	}

	out.Calls = len(order)
	for _, id := range order {
		switch last[id] {
		case interpreter.OutcomeCompleted:
			out.Completed++
		case interpreter.OutcomeNoFlow:
			out.NoFlow++
		case interpreter.OutcomeHopCap:
			out.HopCapped++
		case interpreter.OutcomeError:
			out.Errors++
		case interpreter.OutcomeSuspended:
			out.Abandoned++
		}
	}
	if out.Forwards > 0 {
		out.AnswerRate = float64(out.ForwardsAnswered) / float64(out.Forwards)
	}
	return out, nil
}
