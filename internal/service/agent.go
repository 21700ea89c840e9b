package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"resellhub/internal/model"
	"resellhub/internal/pricing"
	"resellhub/internal/repository"

	"github.com/shopspring/decimal"
)

var agentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// CredentialBox seals and opens bot credentials.
type CredentialBox interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

// CreateAgentInput holds the fields an administrator supplies for a new agent.
type CreateAgentInput struct {
	AgentID     string        `json:"agent_id"`
	Name        string        `json:"name"`
	BotToken    string        `json:"bot_token"`
	Pricing     model.Pricing `json:"pricing"`
	Payout      model.Payout  `json:"payout"`
	OwnerUserID int64         `json:"owner_user_id"`
}

// AgentService manages agent records. Agents are never deleted, only paused
// or suspended.
type AgentService struct {
	repo repository.AgentRepository
	box  CredentialBox
	now  func() time.Time
}

// NewAgentService creates an agent service.
func NewAgentService(repo repository.AgentRepository, box CredentialBox) *AgentService {
	return &AgentService{repo: repo, box: box, now: time.Now}
}

// Create registers a new active agent with its bot token sealed.
func (s *AgentService) Create(ctx context.Context, in CreateAgentInput, adminID int64) (*model.Agent, error) {
	in.AgentID = strings.TrimSpace(in.AgentID)
	in.Name = strings.TrimSpace(in.Name)
	in.BotToken = strings.TrimSpace(in.BotToken)

	switch {
	case !agentIDPattern.MatchString(in.AgentID):
		return nil, fmt.Errorf("%w: agent id must be 1-64 letters, digits, '-' or '_'", ErrInvalidArgument)
	case in.Name == "":
		return nil, fmt.Errorf("%w: name required", ErrInvalidArgument)
	case in.BotToken == "":
		return nil, fmt.Errorf("%w: bot token required", ErrInvalidArgument)
	}
	if in.Pricing.MarkupType == "" {
		in.Pricing.MarkupType = model.MarkupFixed
	}
	if err := pricing.Validate(in.Pricing); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if !in.Payout.MinWithdrawal.IsPositive() {
		in.Payout.MinWithdrawal = DefaultMinWithdrawal
	}

	sealed, err := s.box.Seal(in.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to seal bot token: %w", err)
	}

	now := s.now().UTC()
	agent := &model.Agent{
		AgentID:           in.AgentID,
		Name:              in.Name,
		Status:            model.AgentActive,
		Pricing:           in.Pricing,
		Payout:            in.Payout,
		OwnerUserID:       in.OwnerUserID,
		BotTokenEncrypted: sealed,
		CreatedByAdminID:  adminID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", ErrAgentExists, in.AgentID)
		}
		return nil, err
	}

	log.Printf("[Agents] Created agent=%s admin=%d", agent.AgentID, adminID)
	return agent, nil
}

// Get returns an agent by id.
func (s *AgentService) Get(ctx context.Context, agentID string) (*model.Agent, error) {
	a, err := s.repo.GetAgent(ctx, agentID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return a, err
}

// List returns agents with the given status, or all for an empty status.
func (s *AgentService) List(ctx context.Context, status model.AgentStatus) ([]model.Agent, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	return s.repo.ListAgents(ctx, status)
}

// ActiveAgents returns every agent that should have a running bot.
func (s *AgentService) ActiveAgents(ctx context.Context) ([]model.Agent, error) {
	return s.repo.ListAgents(ctx, model.AgentActive)
}

// SetStatus changes an agent's lifecycle status.
func (s *AgentService) SetStatus(ctx context.Context, agentID string, status model.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, status)
	}
	ok, err := s.repo.UpdateAgentStatus(ctx, agentID, status, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	log.Printf("[Agents] Status agent=%s status=%s", agentID, status)
	return nil
}

// SetPricing replaces an agent's markup.
func (s *AgentService) SetPricing(ctx context.Context, agentID string, p model.Pricing) error {
	if err := pricing.Validate(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	ok, err := s.repo.UpdateAgentPricing(ctx, agentID, p, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return nil
}

// SetPayout replaces an agent's payout settings.
func (s *AgentService) SetPayout(ctx context.Context, agentID string, p model.Payout) error {
	if p.MinWithdrawal.IsNegative() {
		return fmt.Errorf("%w: minimum withdrawal must not be negative", ErrInvalidArgument)
	}
	if p.MinWithdrawal.IsZero() {
		p.MinWithdrawal = DefaultMinWithdrawal
	}
	ok, err := s.repo.UpdateAgentPayout(ctx, agentID, p, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
	}
	return nil
}

// BotToken decrypts the agent's bot credential. Decryption failures are
// integrity errors and are returned as such.
func (s *AgentService) BotToken(agent *model.Agent) (string, error) {
	token, err := s.box.Open(agent.BotTokenEncrypted)
	if err != nil {
		return "", fmt.Errorf("agent %s credential: %w", agent.AgentID, err)
	}
	return token, nil
}

// Quote returns the agent's selling price for a base price.
func (s *AgentService) Quote(ctx context.Context, agentID string, base decimal.Decimal) (decimal.Decimal, error) {
	if base.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: base price must not be negative", ErrInvalidArgument)
	}
	a, err := s.Get(ctx, agentID)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.ApplyMarkup(base, a.Pricing), nil
}
