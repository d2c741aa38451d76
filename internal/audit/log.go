// Package audit records who changed what on the reference backend. Entries
// are logged and, when a store is attached, appended to the audit-log
// collection the console lists.
package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"brdconsole.org/internal/auth"
	"brdconsole.org/internal/obs"
	"brdconsole.org/internal/store"
)

// Collection is where audit entries are stored.
const Collection = "users/audit-logs"

// Action types.
const (
	ActionLogin  = "LOGIN"
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	clientIPKey  ctxKey = "audit_client_ip"
)

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithClientIP attaches the caller's address.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, clientIPKey, ip)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

func stringValue(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Event is one audited action.
type Event struct {
	Action      string
	Module      string
	ResourceID  string
	Description string
}

// Trail writes audit events.
type Trail struct {
	store store.Store
	now   func() time.Time
}

// NewTrail returns a trail backed by st. A nil store only logs.
func NewTrail(st store.Store) *Trail {
	return &Trail{store: st, now: time.Now}
}

// Record logs ev with request and principal context and stores it.
func (t *Trail) Record(ctx context.Context, ev Event) error {
	ev.Action = strings.ToUpper(strings.TrimSpace(ev.Action))
	if ev.Action == "" {
		return errors.New("audit action is required")
	}
	entry := store.Record{
		"action_type": ev.Action,
		"module":      ev.Module,
		"description": ev.Description,
		"timestamp":   t.now().UTC().Format(time.RFC3339Nano),
		"ip_address":  stringValue(ctx, clientIPKey),
	}
	if ev.ResourceID != "" {
		entry["resource_id"] = ev.ResourceID
	}
	p, signed := auth.PrincipalFromContext(ctx)
	if signed {
		entry["user"] = p.UserID
		entry["user_email"] = p.Email
		if p.TenantID != "" {
			entry["tenant"] = p.TenantID
		}
	}

	logEvent := obs.Logger().Info().
		Str("type", "audit").
		Str("event", ev.Action).
		Str("module", ev.Module).
		Str("resource_id", ev.ResourceID)
	if rid := RequestIDFromContext(ctx); rid != "" {
		logEvent = logEvent.Str("request_id", rid)
	}
	if signed {
		logEvent = logEvent.Str("user_id", p.UserID)
	}
	logEvent.Msg(ev.Description)

	if t.store == nil {
		return nil
	}
	id, err := t.store.NextID(ctx, Collection)
	if err != nil {
		return err
	}
	entry["id"] = id
	return t.store.Insert(ctx, Collection, store.Text(id), entry)
}
