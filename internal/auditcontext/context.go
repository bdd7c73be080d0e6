package auditcontext

import (
	"context"
	"strings"
)

type ctxKey string

const (
	actorIDKey   ctxKey = "audit_actor_id"
	actorTypeKey ctxKey = "audit_actor_type"
	requestIDKey ctxKey = "audit_request_id"
	ipAddressKey ctxKey = "audit_ip_address"
	userAgentKey ctxKey = "audit_user_agent"
)

const (
	ActorTypeStaff  = "staff"
	ActorTypePatron = "patron"
	ActorTypeSystem = "system"
)

// Actor identifies who triggered a mutation.
type Actor struct {
	Type string
	ID   string
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = context.WithValue(ctx, actorTypeKey, strings.TrimSpace(actor.Type))
	return context.WithValue(ctx, actorIDKey, strings.TrimSpace(actor.ID))
}

// ActorFromContext returns the actor, defaulting to the system actor.
func ActorFromContext(ctx context.Context) Actor {
	actorType := value(ctx, actorTypeKey)
	actorID := value(ctx, actorIDKey)
	if actorType == "" {
		actorType = ActorTypeSystem
	}
	return Actor{Type: actorType, ID: actorID}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return value(ctx, requestIDKey)
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipAddressKey, strings.TrimSpace(ip))
}

func IPAddressFromContext(ctx context.Context) string {
	return value(ctx, ipAddressKey)
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey, strings.TrimSpace(ua))
}

func UserAgentFromContext(ctx context.Context) string {
	return value(ctx, userAgentKey)
}

func value(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
