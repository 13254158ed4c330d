package middleware

import (
	"net/http"

	"cityfix/api/internal/repos"
	"cityfix/shared/actorx"
	"cityfix/shared/authx"
	"cityfix/shared/httpx"
	"cityfix/shared/workflow"
)

// ActorMiddleware resolves the verified token subject to a local user row and
// stores the actor identity in the request context. Users are created on
// first login; the stored role wins over whatever the token claims later.
type ActorMiddleware struct {
	Users *repos.UsersRepo
	Skip  func(*http.Request) bool
}

func (m ActorMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Skip != nil && m.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		auth, ok := authx.FromContext(r.Context())
		if !ok {
			httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing auth context", nil)
			return
		}
		if m.Users == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "user repository not configured", nil)
			return
		}

		user, err := m.Users.UpsertUserFromAuth(r.Context(), auth.Subject, auth.Email, auth.Name, roleFromClaims(auth.Roles))
		if err != nil {
			httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to resolve user", nil)
			return
		}

		actor := actorx.Actor{
			ID:   user.UserID.String(),
			Role: workflow.NormalizeRole(user.Role),
		}
		ctx := actorx.WithActor(r.Context(), actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// roleFromClaims picks the highest-privilege recognized role from the token.
// Unknown roles fall back to citizen on first login.
func roleFromClaims(roles []string) string {
	best := ""
	for _, role := range roles {
		switch workflow.NormalizeRole(role) {
		case workflow.RoleAdmin:
			return workflow.RoleAdmin
		case workflow.RoleWorker:
			best = workflow.RoleWorker
		case workflow.RoleCitizen:
			if best == "" {
				best = workflow.RoleCitizen
			}
		}
	}
	return best
}
