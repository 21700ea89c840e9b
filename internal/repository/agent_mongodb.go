package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type pricingDocument struct {
	MarkupType  string               `bson:"markup_type"`
	MarkupValue primitive.Decimal128 `bson:"markup_value"`
}

type payoutDocument struct {
	WalletAddress string               `bson:"wallet_address"`
	MinWithdrawal primitive.Decimal128 `bson:"min_withdrawal"`
}

// agentDocument represents an agent in MongoDB. The agent id is the _id.
type agentDocument struct {
	AgentID           string          `bson:"_id"`
	Name              string          `bson:"name"`
	Status            string          `bson:"status"`
	Pricing           pricingDocument `bson:"pricing"`
	Payout            payoutDocument  `bson:"payout"`
	OwnerUserID       int64           `bson:"owner_user_id,omitempty"`
	BotTokenEncrypted string          `bson:"bot_token_encrypted"`
	CreatedByAdminID  int64           `bson:"created_by_admin_id,omitempty"`
	CreatedAt         time.Time       `bson:"created_at"`
	UpdatedAt         time.Time       `bson:"updated_at"`
}

func newPricingDocument(p model.Pricing) pricingDocument {
	return pricingDocument{MarkupType: string(p.MarkupType), MarkupValue: toDecimal128(p.MarkupValue)}
}

func newPayoutDocument(p model.Payout) payoutDocument {
	return payoutDocument{WalletAddress: p.WalletAddress, MinWithdrawal: toDecimal128(p.MinWithdrawal)}
}

func (d *agentDocument) toModel() *model.Agent {
	return &model.Agent{
		AgentID: d.AgentID,
		Name:    d.Name,
		Status:  model.AgentStatus(d.Status),
		Pricing: model.Pricing{
			MarkupType:  model.MarkupType(d.Pricing.MarkupType),
			MarkupValue: fromDecimal128(d.Pricing.MarkupValue),
		},
		Payout: model.Payout{
			WalletAddress: d.Payout.WalletAddress,
			MinWithdrawal: fromDecimal128(d.Payout.MinWithdrawal),
		},
		OwnerUserID:       d.OwnerUserID,
		BotTokenEncrypted: d.BotTokenEncrypted,
		CreatedByAdminID:  d.CreatedByAdminID,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

// CreateAgent inserts a new agent.
func (s *MongoStore) CreateAgent(ctx context.Context, a *model.Agent) error {
	doc := agentDocument{
		AgentID:           a.AgentID,
		Name:              a.Name,
		Status:            string(a.Status),
		Pricing:           newPricingDocument(a.Pricing),
		Payout:            newPayoutDocument(a.Payout),
		OwnerUserID:       a.OwnerUserID,
		BotTokenEncrypted: a.BotTokenEncrypted,
		CreatedByAdminID:  a.CreatedByAdminID,
		CreatedAt:         a.CreatedAt.UTC(),
		UpdatedAt:         a.UpdatedAt.UTC(),
	}
	if _, err := s.agents.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("agent %s: %w", a.AgentID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert agent: %w", err)
	}
	return nil
}

// GetAgent returns an agent by id.
func (s *MongoStore) GetAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	var doc agentDocument
	err := s.agents.FindOne(ctx, bson.M{"_id": agentID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return doc.toModel(), nil
}

// ListAgents returns agents filtered by status.
func (s *MongoStore) ListAgents(ctx context.Context, status model.AgentStatus) ([]model.Agent, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})

	cur, err := s.agents.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	var docs []agentDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode agents: %w", err)
	}

	agents := make([]model.Agent, 0, len(docs))
	for i := range docs {
		agents = append(agents, *docs[i].toModel())
	}
	return agents, nil
}

func (s *MongoStore) setAgentFields(ctx context.Context, agentID string, set bson.M) (bool, error) {
	res, err := s.agents.UpdateOne(ctx, bson.M{"_id": agentID}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return matched(res), nil
}

// UpdateAgentStatus sets an agent's lifecycle status.
func (s *MongoStore) UpdateAgentStatus(ctx context.Context, agentID string, status model.AgentStatus, at time.Time) (bool, error) {
	ok, err := s.setAgentFields(ctx, agentID, bson.M{"status": string(status), "updated_at": at.UTC()})
	if err != nil {
		return false, fmt.Errorf("failed to update agent status: %w", err)
	}
	return ok, nil
}

// UpdateAgentPricing replaces an agent's markup configuration.
func (s *MongoStore) UpdateAgentPricing(ctx context.Context, agentID string, p model.Pricing, at time.Time) (bool, error) {
	ok, err := s.setAgentFields(ctx, agentID, bson.M{"pricing": newPricingDocument(p), "updated_at": at.UTC()})
	if err != nil {
		return false, fmt.Errorf("failed to update agent pricing: %w", err)
	}
	return ok, nil
}

// UpdateAgentPayout replaces an agent's payout settings.
func (s *MongoStore) UpdateAgentPayout(ctx context.Context, agentID string, p model.Payout, at time.Time) (bool, error) {
	ok, err := s.setAgentFields(ctx, agentID, bson.M{"payout": newPayoutDocument(p), "updated_at": at.UTC()})
	if err != nil {
		return false, fmt.Errorf("failed to update agent payout: %w", err)
	}
	return ok, nil
}
