package flowstore

import (
	"context"

	"callflow-platform/internal/audit"
	"callflow-platform/internal/auth"
)

// AuditAdapter records flow changes with audit.Service. Actor and IP come
// from the request context; flowctl changes have neither.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) LogFlowChange(ctx context.Context, e ChangeEvent) error {
	if a.Audit == nil {
		return nil
	}
	var actor audit.Actor
	if id, ok := auth.IdentityFrom(ctx); ok {
		actor.UserID, actor.Role = id.UserID, id.Role
	}
	actor.IP = auth.ClientIP(ctx)

	if e.Kind == ChangeDeleted {
		return a.Audit.Record(ctx, audit.EventTypeFlowDeleted, e.OwnerID, actor, e.FlowID, e.PhoneNumber, nil)
	}
	return a.Audit.Record(ctx, audit.EventTypeFlowSaved, e.OwnerID, actor, e.FlowID, e.PhoneNumber, map[string]any{
		"name":   e.Name,
		"blocks": e.BlockCount,
	})
}
