package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"
)

const agentColumns = `agent_id, name, status, markup_type, markup_value, wallet_address,
	min_withdrawal, owner_user_id, bot_token_encrypted, created_by_admin_id, created_at, updated_at`

// CreateAgent inserts a new agent.
func (s *SQLStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	query := `INSERT INTO agents (` + agentColumns + `) VALUES (` + placeholders(12) + `)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		a.AgentID, a.Name, string(a.Status), string(a.Pricing.MarkupType), a.Pricing.MarkupValue,
		a.Payout.WalletAddress, a.Payout.MinWithdrawal, nullInt64(a.OwnerUserID),
		a.BotTokenEncrypted, nullInt64(a.CreatedByAdminID), toMicros(a.CreatedAt), toMicros(a.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("agent %s: %w", a.AgentID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// GetAgent returns an agent by id.
func (s *SQLStore) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE agent_id = ?`

	a, err := scanAgent(s.db.QueryRowContext(ctx, s.rebind(query), agentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return a, nil
}

// ListAgents returns agents filtered by status.
func (s *SQLStore) ListAgents(ctx context.Context, status model.AgentStatus) ([]model.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, agent_id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// UpdateAgentStatus sets an agent's lifecycle status.
func (s *SQLStore) UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE agents SET status = ?, updated_at = ? WHERE agent_id = ?`,
		string(status), toMicros(at), agentID)
	if err != nil {
		return false, fmt.Errorf("failed to update agent status: %w", err)
	}
	return n > 0, nil
}

// UpdateAgentPricing replaces an agent's markup configuration.
func (s *SQLStore) UpdateAgentPricing(ctx context.Context, agentID string, p model.Pricing, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE agents SET markup_type = ?, markup_value = ?, updated_at = ? WHERE agent_id = ?`,
		string(p.MarkupType), p.MarkupValue, toMicros(at), agentID)
	if err != nil {
		return false, fmt.Errorf("failed to update agent pricing: %w", err)
	}
	return n > 0, nil
}

// UpdateAgentPayout replaces an agent's payout settings.
func (s *SQLStore) UpdateAgentPayout(ctx context.Context, agentID string, p model.Payout, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE agents SET wallet_address = ?, min_withdrawal = ?, updated_at = ? WHERE agent_id = ?`,
		p.WalletAddress, p.MinWithdrawal, toMicros(at), agentID)
	if err != nil {
		return false, fmt.Errorf("failed to update agent payout: %w", err)
	}
	return n > 0, nil
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	var (
		a                  model.Agent
		status, markupType string
		owner, createdBy   sql.NullInt64
		created, updated   int64
	)
	err := row.Scan(&a.AgentID, &a.Name, &status, &markupType, &a.Pricing.MarkupValue,
		&a.Payout.WalletAddress, &a.Payout.MinWithdrawal, &owner, &a.BotTokenEncrypted,
		&createdBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Status = model.AgentStatus(status)
	a.Pricing.MarkupType = model.MarkupType(markupType)
	a.OwnerUserID = owner.Int64
	a.CreatedByAdminID = createdBy.Int64
	a.CreatedAt = fromMicros(created)
	a.UpdatedAt = fromMicros(updated)
	return &a, nil
}
