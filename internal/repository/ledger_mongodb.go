package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ledgerDocument represents a ledger entry in MongoDB.
type ledgerDocument struct {
	ID               string               `bson:"_id"`
	AgentID          string               `bson:"agent_id"`
	OrderID          string               `bson:"order_id"`
	UserID           int64                `bson:"user_id,omitempty"`
	Tenant           string               `bson:"tenant,omitempty"`
	Type             string               `bson:"type"`
	Status           string               `bson:"status"`
	BasePrice        primitive.Decimal128 `bson:"base_price"`
	AgentPrice       primitive.Decimal128 `bson:"agent_price"`
	MarkupPerItem    primitive.Decimal128 `bson:"markup_per_item"`
	Qty              int                  `bson:"qty"`
	Profit           primitive.Decimal128 `bson:"profit"`
	CreatedAt        time.Time            `bson:"created_at"`
	MatureAt         *time.Time           `bson:"mature_at,omitempty"`
	MaturedAt        *time.Time           `bson:"matured_at,omitempty"`
	WithdrawnAt      *time.Time           `bson:"withdrawn_at,omitempty"`
	Reverted         bool                 `bson:"reverted"`
	RevertReason     string               `bson:"revert_reason,omitempty"`
	RevertedAt       *time.Time           `bson:"reverted_at,omitempty"`
	WithdrawalID     string               `bson:"withdrawal_id,omitempty"`
	OriginalLedgerID string               `bson:"original_ledger_id,omitempty"`
}

func (d *ledgerDocument) toModel() model.LedgerEntry {
	return model.LedgerEntry{
		ID:               d.ID,
		AgentID:          d.AgentID,
		OrderID:          d.OrderID,
		UserID:           d.UserID,
		Tenant:           d.Tenant,
		Type:             model.LedgerType(d.Type),
		Status:           model.LedgerStatus(d.Status),
		BasePrice:        fromDecimal128(d.BasePrice),
		AgentPrice:       fromDecimal128(d.AgentPrice),
		MarkupPerItem:    fromDecimal128(d.MarkupPerItem),
		Qty:              d.Qty,
		Profit:           fromDecimal128(d.Profit),
		CreatedAt:        d.CreatedAt.UTC(),
		MatureAt:         utcPtr(d.MatureAt),
		MaturedAt:        utcPtr(d.MaturedAt),
		WithdrawnAt:      utcPtr(d.WithdrawnAt),
		Reverted:         d.Reverted,
		RevertReason:     d.RevertReason,
		RevertedAt:       utcPtr(d.RevertedAt),
		WithdrawalID:     d.WithdrawalID,
		OriginalLedgerID: d.OriginalLedgerID,
	}
}

// InsertEntry inserts a ledger entry.
func (s *MongoStore) InsertEntry(ctx context.Context, e *model.LedgerEntry) error {
	doc := ledgerDocument{
		ID:               e.ID,
		AgentID:          e.AgentID,
		OrderID:          e.OrderID,
		UserID:           e.UserID,
		Tenant:           e.Tenant,
		Type:             string(e.Type),
		Status:           string(e.Status),
		BasePrice:        toDecimal128(e.BasePrice),
		AgentPrice:       toDecimal128(e.AgentPrice),
		MarkupPerItem:    toDecimal128(e.MarkupPerItem),
		Qty:              e.Qty,
		Profit:           toDecimal128(e.Profit),
		CreatedAt:        e.CreatedAt.UTC(),
		MatureAt:         utcPtr(e.MatureAt),
		MaturedAt:        utcPtr(e.MaturedAt),
		WithdrawnAt:      utcPtr(e.WithdrawnAt),
		Reverted:         e.Reverted,
		RevertReason:     e.RevertReason,
		RevertedAt:       utcPtr(e.RevertedAt),
		WithdrawalID:     e.WithdrawalID,
		OriginalLedgerID: e.OriginalLedgerID,
	}
	if _, err := s.ledger.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("ledger entry for order %s: %w", e.OrderID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

func (s *MongoStore) findEntry(ctx context.Context, filter bson.M) (*model.LedgerEntry, error) {
	var doc ledgerDocument
	err := s.ledger.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	e := doc.toModel()
	return &e, nil
}

// GetEntry returns a ledger entry by id.
func (s *MongoStore) GetEntry(ctx context.Context, id string) (*model.LedgerEntry, error) {
	e, err := s.findEntry(ctx, bson.M{"_id": id})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, err
}

// MarkReverted flags a pending or matured sale entry as reverted.
func (s *MongoStore) MarkReverted(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	filter := bson.M{
		"_id":      id,
		"type":     string(model.LedgerSale),
		"reverted": false,
		"status":   bson.M{"$in": bson.A{string(model.LedgerPending), string(model.LedgerMatured)}},
	}
	update := bson.M{"$set": bson.M{"reverted": true, "revert_reason": reason, "reverted_at": at.UTC()}}

	res, err := s.ledger.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark entry reverted: %w", err)
	}
	return matched(res), nil
}

// FindRefundFor returns the refund entry paired with an original.
func (s *MongoStore) FindRefundFor(ctx context.Context, originalID string) (*model.LedgerEntry, error) {
	e, err := s.findEntry(ctx, bson.M{"original_ledger_id": originalID})
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to find refund: %w", err)
	}
	return e, err
}

// ListRevertedSales returns all sale entries flagged reverted.
func (s *MongoStore) ListRevertedSales(ctx context.Context) ([]model.LedgerEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "reverted_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.findEntries(ctx, bson.M{"type": string(model.LedgerSale), "reverted": true}, opts)
}

// MatureDue matures every eligible pending sale entry.
func (s *MongoStore) MatureDue(ctx context.Context, now time.Time) (int64, error) {
	filter := bson.M{
		"status":    string(model.LedgerPending),
		"type":      string(model.LedgerSale),
		"reverted":  false,
		"mature_at": bson.M{"$lte": now.UTC()},
	}
	update := bson.M{"$set": bson.M{"status": string(model.LedgerMatured), "matured_at": now.UTC()}}

	res, err := s.ledger.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mature entries: %w", err)
	}
	return res.ModifiedCount, nil
}

// SumByStatus totals non-reverted sale profit per status with an aggregation.
func (s *MongoStore) SumByStatus(ctx context.Context, agentID string) (map[model.LedgerStatus]decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"agent_id": agentID, "type": string(model.LedgerSale), "reverted": false}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "total": bson.M{"$sum": "$profit"}}}},
	}

	cur, err := s.ledger.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger: %w", err)
	}
	var groups []struct {
		Status string               `bson:"_id"`
		Total  primitive.Decimal128 `bson:"total"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode ledger sums: %w", err)
	}

	sums := make(map[model.LedgerStatus]decimal.Decimal, len(groups))
	for _, g := range groups {
		sums[model.LedgerStatus(g.Status)] = fromDecimal128(g.Total)
	}
	return sums, nil
}

// ListMatured returns an agent's matured entries oldest first.
func (s *MongoStore) ListMatured(ctx context.Context, agentID string) ([]model.LedgerEntry, error) {
	filter := bson.M{"agent_id": agentID, "status": string(model.LedgerMatured), "reverted": false}
	opts := options.Find().SetSort(bson.D{
		{Key: "mature_at", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1},
	})
	return s.findEntries(ctx, filter, opts)
}

// MarkWithdrawn consumes one matured entry for a withdrawal.
func (s *MongoStore) MarkWithdrawn(ctx context.Context, id, withdrawalID, token string, at time.Time) (bool, error) {
	filter := bson.M{"_id": id, "status": string(model.LedgerMatured), "reverted": false}
	update := bson.M{"$set": bson.M{
		"status":           string(model.LedgerWithdrawn),
		"withdrawn_at":     at.UTC(),
		"withdrawal_id":    withdrawalID,
		"settlement_token": token,
	}}

	res, err := s.ledger.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark entry withdrawn: %w", err)
	}
	return matched(res), nil
}

// RestoreWithdrawn undoes MarkWithdrawn for the entries one claim consumed.
func (s *MongoStore) RestoreWithdrawn(ctx context.Context, withdrawalID, token string) (int64, error) {
	return s.restoreWithdrawn(ctx, withdrawalID, token)
}

// RestoreAbandoned undoes MarkWithdrawn for entries consumed under any other
// claim than keepToken. $ne also matches entries with no token at all.
func (s *MongoStore) RestoreAbandoned(ctx context.Context, withdrawalID, keepToken string) (int64, error) {
	return s.restoreWithdrawn(ctx, withdrawalID, bson.M{"$ne": keepToken})
}

func (s *MongoStore) restoreWithdrawn(ctx context.Context, withdrawalID string, token interface{}) (int64, error) {
	filter := bson.M{
		"withdrawal_id":    withdrawalID,
		"status":           string(model.LedgerWithdrawn),
		"settlement_token": token,
	}
	update := bson.M{
		"$set":   bson.M{"status": string(model.LedgerMatured)},
		"$unset": bson.M{"withdrawn_at": "", "withdrawal_id": "", "settlement_token": ""},
	}

	res, err := s.ledger.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to restore entries: %w", err)
	}
	return res.ModifiedCount, nil
}

// ListEntries returns an agent's newest entries first.
func (s *MongoStore) ListEntries(ctx context.Context, agentID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.findEntries(ctx, bson.M{"agent_id": agentID}, opts)
}

func (s *MongoStore) findEntries(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.LedgerEntry, error) {
	cur, err := s.ledger.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	var docs []ledgerDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	entries := make([]model.LedgerEntry, 0, len(docs))
	for i := range docs {
		entries = append(entries, docs[i].toModel())
	}
	return entries, nil
}
