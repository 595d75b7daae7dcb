package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxIdentity ctxKey = iota
	ctxClientIP
)

var errNoIdentity = errors.New("auth: no identity in context")

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxIdentity).(Identity)
	return id, ok
}

func field(ctx context.Context, pick func(Identity) string) (string, error) {
	id, ok := IdentityFrom(ctx)
	if !ok || pick(id) == "" {
		return "", errNoIdentity
	}
	return pick(id), nil
}

func UserID(ctx context.Context) (string, error) {
	return field(ctx, func(id Identity) string { return id.UserID })
}

func OwnerID(ctx context.Context) (string, error) {
	return field(ctx, func(id Identity) string { return id.OwnerID })
}

func Role(ctx context.Context) (string, error) {
	return field(ctx, func(id Identity) string { return id.Role })
}

// WithClientIP records the caller address for audit events.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxClientIP, ip)
}

func ClientIP(ctx context.Context) string {
	s, _ := ctx.Value(ctxClientIP).(string)
	return s
}
