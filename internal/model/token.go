package model

import "time"

// TokenData contains the data stored with an agent portal token.
type TokenData struct {
	AgentID         string    `json:"agent_id"`
	Tenant          string    `json:"tenant"`
	IssuedByAdminID int64     `json:"issued_by_admin_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}
