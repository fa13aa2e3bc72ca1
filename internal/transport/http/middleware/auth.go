package middleware

import (
	"context"
	"net/http"

	"personnel/internal/domain/auth"
	"personnel/internal/platform/requestctx"
	"personnel/internal/transport/http/api"
)

type ctxKey string

const (
	ctxKeyIdentity  ctxKey = "identity"
	ctxKeyActorSlot ctxKey = "actor_slot"
)

// actorSlot lets an outer middleware observe who authenticated further down
// the chain.
type actorSlot struct {
	username string
}

func withActorSlot(ctx context.Context, slot *actorSlot) context.Context {
	return context.WithValue(ctx, ctxKeyActorSlot, slot)
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller's identity in the request context.
func Authenticate(gate *auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := gate.Authorize(r.Header.Get("Authorization"))
			if err != nil {
				api.FailError(w, err, GetRequestID(r.Context()))
				return
			}
			ctx := WithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	ctx = requestctx.WithActor(ctx, id.Username)
	if slot, ok := ctx.Value(ctxKeyActorSlot).(*actorSlot); ok {
		slot.username = id.Username
	}
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func GetIdentity(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(auth.Identity)
	return id, ok
}
