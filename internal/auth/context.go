// Package auth carries the authenticated session actor through the request
// context. The service sits behind an authenticating proxy; the proxy's
// identity headers are parsed once and the resulting actor travels with the
// context from there on.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/graphium/importsvc/internal/domain"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actor"

// ContextWithActor returns a new context carrying the authenticated actor.
func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the authenticated actor from the context, if any.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	value := ctx.Value(actorKey)
	if value == nil {
		return domain.Actor{}, false
	}
	actor, ok := value.(domain.Actor)
	if !ok || actor.OrganizationID == uuid.Nil {
		return domain.Actor{}, false
	}
	return actor, true
}

// ActorFromRequest parses the identity headers attached by the authenticating
// proxy. Organization and user name are mandatory; everything else degrades
// to an empty grant set.
func ActorFromRequest(r *http.Request) (domain.Actor, error) {
	orgID, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Organization-Id")))
	if err != nil {
		return domain.Actor{}, domain.NewAuthorizationError("missing or invalid X-Organization-Id header")
	}
	userName := strings.TrimSpace(r.Header.Get("X-User-Name"))
	if userName == "" {
		return domain.Actor{}, domain.NewAuthorizationError("missing X-User-Name header")
	}

	actor := domain.Actor{OrganizationID: orgID, UserName: userName}
	actor.OrgUserID, _ = strconv.ParseInt(r.Header.Get("X-Org-User-Id"), 10, 64)
	actor.GlobalUserID, _ = strconv.ParseInt(r.Header.Get("X-Global-User-Id"), 10, 64)
	for _, raw := range strings.Split(r.Header.Get("X-Permissions"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			actor.Permissions = append(actor.Permissions, domain.Permission(raw))
		}
	}
	for _, raw := range strings.Split(r.Header.Get("X-Roles"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			actor.Roles = append(actor.Roles, domain.Role(raw))
		}
	}
	return actor, nil
}
