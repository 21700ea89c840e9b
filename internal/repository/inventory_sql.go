package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"
	"resellhub/pkg/uid"
)

const unitColumns = `id, product_id, state, sold_to_user_id, reserved_at, created_at`

// AddUnits stocks count new available units of a product in one transaction.
func (s *SQLStore) AddUnits(ctx context.Context, productID string, count int, at time.Time) ([]string, error) {
	if count <= 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.rebind(
		`INSERT INTO inventory_units (id, product_id, state, created_at) VALUES (?, ?, ?, ?)`))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, 0, count)
	created := toMicros(at)
	for i := 0; i < count; i++ {
		id := uid.NewV7()
		if _, err := stmt.ExecContext(ctx, id, productID, int(model.UnitAvailable), created); err != nil {
			return nil, fmt.Errorf("failed to insert unit: %w", err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

// ReserveOne flips one available unit to sold in a single statement.
func (s *SQLStore) ReserveOne(ctx context.Context, productID string, requesterID int64, at time.Time) (*model.InventoryUnit, error) {
	if s.dialect == DialectMySQL {
		return s.reserveOneMySQL(ctx, productID, requesterID, at)
	}

	// SKIP LOCKED lets concurrent reservers on PostgreSQL pick different rows
	// instead of queueing on the same one.
	lock := ""
	if s.dialect == DialectPostgres {
		lock = " FOR UPDATE SKIP LOCKED"
	}
	query := `UPDATE inventory_units SET state = ?, sold_to_user_id = ?, reserved_at = ?
		WHERE id = (SELECT id FROM inventory_units WHERE product_id = ? AND state = ? LIMIT 1` + lock + `)
		AND state = ?
		RETURNING ` + unitColumns

	unit, err := scanUnit(s.db.QueryRowContext(ctx, s.rebind(query),
		int(model.UnitSold), requesterID, toMicros(at), productID, int(model.UnitAvailable), int(model.UnitAvailable)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reserve unit: %w", err)
	}
	return unit, nil
}

// reserveOneMySQL tags the winning row with a fresh reservation id, since
// MySQL has no UPDATE ... RETURNING.
func (s *SQLStore) reserveOneMySQL(ctx context.Context, productID string, requesterID int64, at time.Time) (*model.InventoryUnit, error) {
	reservation := uid.New()

	n, err := s.exec(ctx, `UPDATE inventory_units SET state = ?, sold_to_user_id = ?, reserved_at = ?, reservation_id = ?
		WHERE product_id = ? AND state = ? LIMIT 1`,
		int(model.UnitSold), requesterID, toMicros(at), reservation, productID, int(model.UnitAvailable))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve unit: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	unit, err := scanUnit(s.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM inventory_units WHERE reservation_id = ?`, reservation))
	if err != nil {
		return nil, fmt.Errorf("failed to load reserved unit: %w", err)
	}
	return unit, nil
}

// ReleaseUnits returns sold units to available.
func (s *SQLStore) ReleaseUnits(ctx context.Context, unitIDs []string) (int64, error) {
	if len(unitIDs) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(unitIDs)+2)
	args = append(args, int(model.UnitAvailable))
	for _, id := range unitIDs {
		args = append(args, id)
	}
	args = append(args, int(model.UnitSold))

	n, err := s.exec(ctx, `UPDATE inventory_units
		SET state = ?, sold_to_user_id = NULL, reserved_at = NULL, reservation_id = NULL
		WHERE id IN (`+placeholders(len(unitIDs))+`) AND state = ?`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to release units: %w", err)
	}
	return n, nil
}

// CountAvailable counts available units of a product.
func (s *SQLStore) CountAvailable(ctx context.Context, productID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM inventory_units WHERE product_id = ? AND state = ?`),
		productID, int(model.UnitAvailable)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count units: %w", err)
	}
	return n, nil
}

func scanUnit(row rowScanner) (*model.InventoryUnit, error) {
	var (
		u        model.InventoryUnit
		state    int
		soldTo   sql.NullInt64
		reserved sql.NullInt64
		created  int64
	)
	if err := row.Scan(&u.ID, &u.ProductID, &state, &soldTo, &reserved, &created); err != nil {
		return nil, err
	}
	u.State = model.UnitState(state)
	u.SoldToUserID = soldTo.Int64
	u.ReservedAt = microsPtr(reserved)
	u.CreatedAt = fromMicros(created)
	return &u, nil
}
