package entitlements

import (
	"github.com/ManuelReschke/AgentHub/app/models"
)

// Access describes why an account may or may not chat with an agent.
type Access string

const (
	AccessPublic   Access = "public"
	AccessOwner    Access = "owner"
	AccessGranted  Access = "entitlement"
	AccessDenied   Access = "denied"
	AccessNotFound Access = "not_found"
)

// Allowed reports whether the access level lets the account use the agent.
func (a Access) Allowed() bool {
	switch a {
	case AccessPublic, AccessOwner, AccessGranted:
		return true
	default:
		return false
	}
}

// IsOpenToEveryone reports whether an agent needs no ownership or purchase:
// it must be public and either free or not premium.
func IsOpenToEveryone(agent *models.Agent) bool {
	return agent != nil && agent.IsPublic && (agent.IsFree || !agent.IsPremium)
}

// Evaluate combines the agent's visibility, ownership and an entitlement
// lookup result into the effective access level.
func Evaluate(agent *models.Agent, accountID uint, entitled bool) Access {
	if agent == nil {
		return AccessNotFound
	}
	if agent.IsOwnedBy(accountID) {
		return AccessOwner
	}
	if IsOpenToEveryone(agent) {
		return AccessPublic
	}
	if entitled {
		return AccessGranted
	}
	return AccessDenied
}
