package middleware

import (
	"net/http"
	"strings"

	"github.com/Werdo/ose-platform-sub000/internal/core"
)

// ActorHeader carries the caller identity set by the upstream auth proxy.
const ActorHeader = "X-Actor"

const maxActorLength = 128

// Actor stores the X-Actor header and the client address in the request
// context. Overlong actor values are truncated.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithIPAddress(r.Context(), r.RemoteAddr)
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			if len(actor) > maxActorLength {
				actor = actor[:maxActorLength]
			}
			ctx = core.ContextWithActor(ctx, actor)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
