package middleware

import (
	"context"

	"github.com/SscSPs/allowance_wallet/internal/core/domain"
	"github.com/gin-gonic/gin"
)

// actorKey is the key used to store the authenticated caller in the request context.
const actorKey = contextKey("actor")

// WithActor returns a copy of ctx carrying the authenticated caller.
func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActorFromContext retrieves the authenticated caller from the Gin request context.
// It returns the actor and a boolean indicating if it was found.
func GetActorFromContext(c *gin.Context) (domain.Actor, bool) {
	actor, ok := c.Request.Context().Value(actorKey).(domain.Actor)
	if !ok || actor.AccountID == "" {
		return domain.Actor{}, false
	}
	return actor, true
}
