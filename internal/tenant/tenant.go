// Package tenant names the logical partitions of the shared catalog: the
// master store and one store per agent.
package tenant

import "strings"

const (
	// Master is the tenant token of the master storefront.
	Master = "master"

	agentPrefix = "agent:"
)

// ForAgent returns the tenant token for an agent store. An empty agent id
// means the master store.
func ForAgent(agentID string) string {
	if agentID == "" {
		return Master
	}
	return agentPrefix + agentID
}

// AgentID extracts the agent id from a tenant token.
func AgentID(tenant string) (string, bool) {
	if !strings.HasPrefix(tenant, agentPrefix) {
		return "", false
	}
	id := tenant[len(agentPrefix):]
	return id, id != ""
}

// IsMaster reports whether tenant is the master store.
func IsMaster(tenant string) bool {
	return tenant == Master
}

// IsAgent reports whether tenant is an agent store.
func IsAgent(tenant string) bool {
	_, ok := AgentID(tenant)
	return ok
}
