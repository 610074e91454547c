package httpmw

import (
	"context"
	"errors"
	"net/http"

	"github.com/cwrk-planet/plan-chat/internal/domain"
	"github.com/cwrk-planet/plan-chat/internal/security"
	"github.com/cwrk-planet/plan-chat/pkg/httputil"
)

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok && !id.IsZero()
}

// AuthMiddleware validates the bearer token and stores the resolved
// identity in the request context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.Authenticate(r.Context(), security.TokenFromRequest(r))
			if err != nil {
				if errors.Is(err, domain.ErrUnauthenticated) {
					httputil.Error(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing access token")
					return
				}
				httputil.Error(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "internal error")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
