package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ariefcatur/marketplace-orders/internal/checkout"
)

// Identity headers set by the upstream auth layer.
const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-Role"
)

type ctxKey int

const ctxKeyActor ctxKey = iota

// WithActor rejects requests without a valid user id and stores the caller in the context.
func WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderUserID)), 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthenticated", Message: "missing or invalid " + HeaderUserID})
			return
		}
		a := checkout.Customer(id)
		if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderRole)), string(checkout.RoleAdmin)) {
			a = checkout.Admin(id)
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyActor, a)))
	})
}

func actorFrom(ctx context.Context) checkout.Actor {
	a, _ := ctx.Value(ctxKeyActor).(checkout.Actor)
	return a
}
