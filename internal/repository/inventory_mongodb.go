package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"
	"resellhub/pkg/uid"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// unitDocument represents an inventory unit in MongoDB.
type unitDocument struct {
	ID           string     `bson:"_id"`
	ProductID    string     `bson:"product_id"`
	State        int        `bson:"state"`
	SoldToUserID int64      `bson:"sold_to_user_id,omitempty"`
	ReservedAt   *time.Time `bson:"reserved_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
}

func (d *unitDocument) toModel() *model.InventoryUnit {
	return &model.InventoryUnit{
		ID:           d.ID,
		ProductID:    d.ProductID,
		State:        model.UnitState(d.State),
		SoldToUserID: d.SoldToUserID,
		ReservedAt:   utcPtr(d.ReservedAt),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// AddUnits stocks count new available units of a product.
func (s *MongoStore) AddUnits(ctx context.Context, productID string, count int, at time.Time) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	ids := make([]string, count)
	docs := make([]interface{}, count)
	for i := range docs {
		ids[i] = uid.NewV7()
		docs[i] = unitDocument{
			ID:        ids[i],
			ProductID: productID,
			State:     int(model.UnitAvailable),
			CreatedAt: at.UTC(),
		}
	}

	if _, err := s.inventory.InsertMany(ctx, docs); err != nil {
		return nil, fmt.Errorf("failed to insert units: %w", err)
	}
	return ids, nil
}

// ReserveOne finds one available unit and flips it to sold in one
// FindOneAndUpdate, so at most one caller wins each unit.
func (s *MongoStore) ReserveOne(ctx context.Context, productID string, requesterID int64, at time.Time) (*model.InventoryUnit, error) {
	filter := bson.M{"product_id": productID, "state": int(model.UnitAvailable)}
	update := bson.M{"$set": bson.M{
		"state":           int(model.UnitSold),
		"sold_to_user_id": requesterID,
		"reserved_at":     at.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc unitDocument
	err := s.inventory.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve unit: %w", err)
	}
	return doc.toModel(), nil
}

// ReleaseUnits returns sold units to available.
func (s *MongoStore) ReleaseUnits(ctx context.Context, unitIDs []string) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}

	filter := bson.M{"_id": bson.M{"$in": unitIDs}, "state": int(model.UnitSold)}
	update := bson.M{
		"$set":   bson.M{"state": int(model.UnitAvailable)},
		"$unset": bson.M{"sold_to_user_id": "", "reserved_at": ""},
	}
	res, err := s.inventory.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to release units: %w", err)
	}
	return res.ModifiedCount, nil
}

// CountAvailable counts available units of a product.
func (s *MongoStore) CountAvailable(ctx context.Context, productID string) (int64, error) {
	n, err := s.inventory.CountDocuments(ctx, bson.M{"product_id": productID, "state": int(model.UnitAvailable)})
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return n, nil
}
