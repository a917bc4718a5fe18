package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shiplane/wallet-ledger/internal/policy"
)

const (
	// ActorIDHeader carries the authenticated caller's ID, set by the edge
	// gateway after token validation
	ActorIDHeader = "X-Actor-ID"

	// ActorRoleHeader carries the caller's resolved role
	ActorRoleHeader = "X-Actor-Role"

	// ImpersonateHeader is set when a support operator acts on behalf of a
	// tenant
	ImpersonateHeader = "X-Impersonate-Tenant"

	actorKey = "actor"
)

// Actor middleware extracts the calling identity from gateway headers so
// handlers can pass it to the credit policy
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		// An unparseable or absent actor ID degrades to the zero UUID,
		// which never qualifies for privileged treatment on its own
		actorID, _ := uuid.Parse(c.GetHeader(ActorIDHeader))
		c.Set(actorKey, policy.Actor{
			ID:            actorID,
			Role:          c.GetHeader(ActorRoleHeader),
			Impersonating: c.GetHeader(ImpersonateHeader) != "",
		})
		c.Next()
	}
}

// GetActor retrieves the calling identity from the gin context. An absent
// actor is returned as the zero value, which holds no privileges.
func GetActor(c *gin.Context) policy.Actor {
	if v, exists := c.Get(actorKey); exists {
		if actor, ok := v.(policy.Actor); ok {
			return actor
		}
	}
	return policy.Actor{}
}
