// Package requestcontext carries the caller, request id and request time
// from the HTTP middleware to the services. The composition service treats
// the user id found here as the acting caller for every ownership check; an
// absent user id means the request is anonymous.
package requestcontext

import (
	"context"
	"time"

	id "ezweb/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// UserID is the authenticated caller, or 0 for anonymous requests.
func UserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(callerKey{}).(id.UserID); ok {
		return userID
	}
	return 0
}

// Authenticated reports whether a caller was attached.
func Authenticated(ctx context.Context) bool {
	return !UserID(ctx).IsNil()
}

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

func RequestID(ctx context.Context) string {
	reqID, _ := ctx.Value(requestIDKey{}).(string)
	return reqID
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now is the time every write of one request stamps on its records, so a
// reorder touching many bindings gives them one UpdatedAt. Outside a request
// (CLI, background work) it is the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
