package middleware

import (
	"context"
	"net/http"
	"strconv"
)

// HeaderActorID carries the authenticated owner id, set by the gateway in
// front of this service.
const HeaderActorID = "X-Actor-ID"

type contextKey string

const actorKey contextKey = "actor_id"

// RequireActor rejects requests without a positive numeric X-Actor-ID.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(HeaderActorID), 10, 64)
		if err != nil || id <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing or invalid ` + HeaderActorID + ` header"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), id)))
	})
}

func WithActor(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, actorKey, id)
}

// ActorFrom returns the acting owner id stored by RequireActor.
func ActorFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(actorKey).(int64)
	return id, ok
}
