package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	collAgents      = "agents"
	collInventory   = "inventory_units"
	collLedger      = "ledger_entries"
	collWithdrawals = "withdrawals"
)

// MongoStore implements Store using MongoDB. Every mutation is a single
// document (or filtered multi-document) conditional update; no transactions.
type MongoStore struct {
	client      *mongo.Client
	db          *mongo.Database
	agents      *mongo.Collection
	inventory   *mongo.Collection
	ledger      *mongo.Collection
	withdrawals *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore connects to MongoDB and ensures indexes.
func NewMongoStore(uri, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := newMongoStore(client, client.Database(database))
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Printf("[MongoStore] Connected to %s", database)
	return s, nil
}

func newMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:      client,
		db:          db,
		agents:      db.Collection(collAgents),
		inventory:   db.Collection(collInventory),
		ledger:      db.Collection(collLedger),
		withdrawals: db.Collection(collWithdrawals),
	}
}

// ensureIndexes creates lookup indexes and the uniqueness constraints the
// ledger relies on: one sale per order, one refund per original entry.
func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   *mongo.Collection
		models []mongo.IndexModel
	}{
		{s.agents, []mongo.IndexModel{
			{Keys: bson.D{{Key: "status", Value: 1}}, Options: options.Index().SetName("idx_agents_status")},
		}},
		{s.inventory, []mongo.IndexModel{
			{Keys: bson.D{{Key: "product_id", Value: 1}, {Key: "state", Value: 1}}, Options: options.Index().SetName("idx_inventory_product_state")},
		}},
		{s.ledger, []mongo.IndexModel{
			{
				Keys: bson.D{{Key: "order_id", Value: 1}},
				Options: options.Index().SetName("uniq_ledger_sale_order").SetUnique(true).
					SetPartialFilterExpression(bson.M{"type": "sale"}),
			},
			{
				Keys: bson.D{{Key: "original_ledger_id", Value: 1}},
				Options: options.Index().SetName("uniq_ledger_original").SetUnique(true).
					SetPartialFilterExpression(bson.M{"original_ledger_id": bson.M{"$exists": true}}),
			},
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "status", Value: 1}, {Key: "mature_at", Value: 1}}, Options: options.Index().SetName("idx_ledger_agent_status")},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "mature_at", Value: 1}}, Options: options.Index().SetName("idx_ledger_status_mature")},
			{Keys: bson.D{{Key: "withdrawal_id", Value: 1}}, Options: options.Index().SetName("idx_ledger_withdrawal")},
		}},
		{s.withdrawals, []mongo.IndexModel{
			{Keys: bson.D{{Key: "agent_id", Value: 1}, {Key: "status", Value: 1}}, Options: options.Index().SetName("idx_withdrawals_agent_status")},
		}},
	}

	for _, spec := range specs {
		if _, err := spec.coll.Indexes().CreateMany(ctx, spec.models); err != nil {
			return fmt.Errorf("%s: %w", spec.coll.Name(), err)
		}
	}
	return nil
}

// Ping checks connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Stats returns document counts and the database size.
func (s *MongoStore) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{
		"status":  "connected",
		"backend": "mongodb",
	}

	counts := []struct {
		key    string
		coll   *mongo.Collection
		filter bson.M
	}{
		{"agents", s.agents, bson.M{}},
		{"active_agents", s.agents, bson.M{"status": "active"}},
		{"inventory_available", s.inventory, bson.M{"state": 0}},
		{"inventory_sold", s.inventory, bson.M{"state": 1}},
		{"ledger_entries", s.ledger, bson.M{}},
		{"withdrawals_open", s.withdrawals, bson.M{"status": bson.M{"$in": bson.A{"requested", "approved"}}}},
	}
	for _, c := range counts {
		n, err := c.coll.CountDocuments(ctx, c.filter)
		if err != nil {
			return stats, fmt.Errorf("failed to count %s: %w", c.key, err)
		}
		stats[c.key] = n
	}

	var dbStats bson.M
	if err := s.db.RunCommand(ctx, bson.D{{Key: "dbStats", Value: 1}}).Decode(&dbStats); err == nil {
		switch size := dbStats["dataSize"].(type) {
		case int64:
			stats["db_size_bytes"] = size
		case int32:
			stats["db_size_bytes"] = int64(size)
		case float64:
			stats["db_size_bytes"] = int64(size)
		}
	}

	return stats, nil
}

func toDecimal128(d decimal.Decimal) primitive.Decimal128 {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		// Only reachable for values outside the 34 digit range.
		return primitive.NewDecimal128(0, 0)
	}
	return v
}

func fromDecimal128(v primitive.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func matched(res *mongo.UpdateResult) bool {
	return res != nil && res.MatchedCount > 0
}
