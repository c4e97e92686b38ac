package testutil

import (
	"context"
	"time"

	id "ezweb/pkg/domain"
	"ezweb/pkg/requestcontext"
)

// OwnerContext returns a context for userID with a fixed request time, the
// state a service sees behind the auth and request-time middleware.
func OwnerContext(userID id.UserID, now time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	return requestcontext.WithUserID(ctx, userID)
}
