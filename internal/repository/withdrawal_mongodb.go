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

// withdrawalDocument represents a withdrawal in MongoDB.
type withdrawalDocument struct {
	ID                string               `bson:"_id"`
	AgentID           string               `bson:"agent_id"`
	Amount            primitive.Decimal128 `bson:"amount"`
	WalletAddress     string               `bson:"wallet_address"`
	Status            string               `bson:"status"`
	RequestedAt       time.Time            `bson:"requested_at"`
	ApprovedAt        *time.Time           `bson:"approved_at,omitempty"`
	ApprovedByAdminID int64                `bson:"approved_by_admin_id,omitempty"`
	PaidAt            *time.Time           `bson:"paid_at,omitempty"`
	PaidByAdminID     int64                `bson:"paid_by_admin_id,omitempty"`
	RejectedAt        *time.Time           `bson:"rejected_at,omitempty"`
	RejectedByAdminID int64                `bson:"rejected_by_admin_id,omitempty"`
	TxID              string               `bson:"txid,omitempty"`
	AdminNote         string               `bson:"admin_note,omitempty"`
	ClaimToken        string               `bson:"claim_token,omitempty"`
	ClaimedAt         *time.Time           `bson:"claimed_at,omitempty"`
}

func (d *withdrawalDocument) toModel() model.Withdrawal {
	return model.Withdrawal{
		ID:                d.ID,
		AgentID:           d.AgentID,
		Amount:            fromDecimal128(d.Amount),
		WalletAddress:     d.WalletAddress,
		Status:            model.WithdrawalStatus(d.Status),
		RequestedAt:       d.RequestedAt.UTC(),
		ApprovedAt:        utcPtr(d.ApprovedAt),
		ApprovedByAdminID: d.ApprovedByAdminID,
		PaidAt:            utcPtr(d.PaidAt),
		PaidByAdminID:     d.PaidByAdminID,
		RejectedAt:        utcPtr(d.RejectedAt),
		RejectedByAdminID: d.RejectedByAdminID,
		TxID:              d.TxID,
		AdminNote:         d.AdminNote,
		ClaimToken:        d.ClaimToken,
		ClaimedAt:         utcPtr(d.ClaimedAt),
	}
}

// InsertWithdrawal inserts a new withdrawal request.
func (s *MongoStore) InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	doc := withdrawalDocument{
		ID:            w.ID,
		AgentID:       w.AgentID,
		Amount:        toDecimal128(w.Amount),
		WalletAddress: w.WalletAddress,
		Status:        string(w.Status),
		RequestedAt:   w.RequestedAt.UTC(),
	}
	if _, err := s.withdrawals.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("withdrawal %s: %w", w.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal returns a withdrawal by id.
func (s *MongoStore) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	var doc withdrawalDocument
	err := s.withdrawals.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	w := doc.toModel()
	return &w, nil
}

// ListWithdrawals returns withdrawals newest first.
func (s *MongoStore) ListWithdrawals(ctx context.Context, agentID string, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	filter := bson.M{}
	if agentID != "" {
		filter["agent_id"] = agentID
	}
	if status != "" {
		filter["status"] = string(status)
	}
	opts := options.Find().SetSort(bson.D{{Key: "requested_at", Value: -1}, {Key: "_id", Value: -1}})

	cur, err := s.withdrawals.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	var docs []withdrawalDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode withdrawals: %w", err)
	}

	out := make([]model.Withdrawal, 0, len(docs))
	for i := range docs {
		out = append(out, docs[i].toModel())
	}
	return out, nil
}

func (s *MongoStore) transitionWithdrawal(ctx context.Context, filter, update bson.M) (bool, error) {
	res, err := s.withdrawals.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return matched(res), nil
}

// ApproveWithdrawal moves requested to approved.
func (s *MongoStore) ApproveWithdrawal(ctx context.Context, id string, adminID int64, at time.Time) (bool, error) {
	ok, err := s.transitionWithdrawal(ctx,
		bson.M{"_id": id, "status": string(model.WithdrawalRequested)},
		bson.M{"$set": bson.M{
			"status":               string(model.WithdrawalApproved),
			"approved_at":          at.UTC(),
			"approved_by_admin_id": adminID,
		}})
	if err != nil {
		return false, fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	return ok, nil
}

// RejectWithdrawal moves requested, or unclaimed approved, to rejected.
func (s *MongoStore) RejectWithdrawal(ctx context.Context, id string, adminID int64, note string, at time.Time) (bool, error) {
	ok, err := s.transitionWithdrawal(ctx,
		bson.M{"_id": id, "$or": bson.A{
			bson.M{"status": string(model.WithdrawalRequested)},
			bson.M{"status": string(model.WithdrawalApproved), "claim_token": nil},
		}},
		bson.M{"$set": bson.M{
			"status":               string(model.WithdrawalRejected),
			"rejected_at":          at.UTC(),
			"rejected_by_admin_id": adminID,
			"admin_note":           note,
		}})
	if err != nil {
		return false, fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	return ok, nil
}

// ClaimWithdrawal takes the settlement lease.
func (s *MongoStore) ClaimWithdrawal(ctx context.Context, id, token string, at, staleBefore time.Time) (bool, error) {
	ok, err := s.transitionWithdrawal(ctx,
		bson.M{"_id": id, "status": string(model.WithdrawalApproved), "$or": bson.A{
			bson.M{"claim_token": nil},
			bson.M{"claimed_at": bson.M{"$lt": staleBefore.UTC()}},
		}},
		bson.M{"$set": bson.M{"claim_token": token, "claimed_at": at.UTC()}})
	if err != nil {
		return false, fmt.Errorf("failed to claim withdrawal: %w", err)
	}
	return ok, nil
}

// ReleaseWithdrawalClaim drops a lease held by token.
func (s *MongoStore) ReleaseWithdrawalClaim(ctx context.Context, id, token string) error {
	_, err := s.withdrawals.UpdateOne(ctx,
		bson.M{"_id": id, "claim_token": token},
		bson.M{"$unset": bson.M{"claim_token": "", "claimed_at": ""}})
	if err != nil {
		return fmt.Errorf("failed to release withdrawal claim: %w", err)
	}
	return nil
}

// MarkWithdrawalPaid completes a claimed, approved withdrawal.
func (s *MongoStore) MarkWithdrawalPaid(ctx context.Context, id, token, txid string, adminID int64, at time.Time) (bool, error) {
	ok, err := s.transitionWithdrawal(ctx,
		bson.M{"_id": id, "status": string(model.WithdrawalApproved), "claim_token": token},
		bson.M{
			"$set": bson.M{
				"status":           string(model.WithdrawalPaid),
				"paid_at":          at.UTC(),
				"paid_by_admin_id": adminID,
				"txid":             txid,
			},
			"$unset": bson.M{"claim_token": "", "claimed_at": ""},
		})
	if err != nil {
		return false, fmt.Errorf("failed to mark withdrawal paid: %w", err)
	}
	return ok, nil
}

// SumOutstanding totals requested and approved withdrawals for an agent.
func (s *MongoStore) SumOutstanding(ctx context.Context, agentID string) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"agent_id": agentID,
			"status":   bson.M{"$in": bson.A{string(model.WithdrawalRequested), string(model.WithdrawalApproved)}},
		}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}}},
	}

	cur, err := s.withdrawals.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	var groups []struct {
		Total primitive.Decimal128 `bson:"total"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode withdrawal sum: %w", err)
	}
	if len(groups) == 0 {
		return decimal.Zero, nil
	}
	return fromDecimal128(groups[0].Total), nil
}
