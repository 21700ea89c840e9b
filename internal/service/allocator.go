package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"resellhub/internal/repository"
)

// rollbackTimeout bounds the release of partially reserved units. It runs
// detached from the caller's context so a cancelled request still rolls back.
const rollbackTimeout = 10 * time.Second

// Allocator reserves fixed-supply inventory units without oversell.
// The only gate on allocation is the store's atomic single-unit flip;
// available counts are advisory.
type Allocator struct {
	repo repository.InventoryRepository
	now  func() time.Time
}

// NewAllocator creates an allocator over an inventory repository.
func NewAllocator(repo repository.InventoryRepository) *Allocator {
	return &Allocator{repo: repo, now: time.Now}
}

// Reserve claims count units of productID for requesterID. Either all count
// unit ids are returned or none are held: on any shortfall every unit taken
// by this call is released and ErrInsufficientStock is returned.
func (a *Allocator) Reserve(ctx context.Context, productID string, requesterID int64, count int) ([]string, error) {
	if productID == "" || count <= 0 {
		return nil, fmt.Errorf("%w: product id and positive count required", ErrInvalidArgument)
	}

	reserved := make([]string, 0, count)
	for len(reserved) < count {
		unit, err := a.repo.ReserveOne(ctx, productID, requesterID, a.now())
		if err != nil {
			a.rollback(ctx, productID, reserved)
			return nil, fmt.Errorf("failed to reserve %s: %w", productID, err)
		}
		if unit == nil {
			a.rollback(ctx, productID, reserved)
			return nil, fmt.Errorf("%w: product %s wanted %d, got %d", ErrInsufficientStock, productID, count, len(reserved))
		}
		reserved = append(reserved, unit.ID)
	}
	return reserved, nil
}

func (a *Allocator) rollback(ctx context.Context, productID string, ids []string) {
	if len(ids) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	released, err := a.repo.ReleaseUnits(rctx, ids)
	if err != nil {
		log.Printf("[Allocator] Rollback of %d units for %s failed: %v", len(ids), productID, err)
		return
	}
	log.Printf("[Allocator] Rolled back %d/%d units for %s", released, len(ids), productID)
}

// Release returns sold units to available, for cancellations and refunds.
func (a *Allocator) Release(ctx context.Context, unitIDs []string) (int64, error) {
	return a.repo.ReleaseUnits(ctx, unitIDs)
}

// Available returns the advisory count of available units.
func (a *Allocator) Available(ctx context.Context, productID string) (int64, error) {
	return a.repo.CountAvailable(ctx, productID)
}

// Stock adds count available units of productID.
func (a *Allocator) Stock(ctx context.Context, productID string, count int) ([]string, error) {
	if productID == "" || count <= 0 || count > 10000 {
		return nil, fmt.Errorf("%w: product id and count in 1..10000 required", ErrInvalidArgument)
	}
	ids, err := a.repo.AddUnits(ctx, productID, count, a.now())
	if err != nil {
		return nil, err
	}
	log.Printf("[Allocator] Stocked %d units of %s", len(ids), productID)
	return ids, nil
}
