package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resellhub/internal/model"

	"github.com/shopspring/decimal"
)

const ledgerColumns = `id, agent_id, order_id, user_id, tenant, type, status, base_price, agent_price,
	markup_per_item, qty, profit, created_at, mature_at, matured_at, withdrawn_at, reverted,
	revert_reason, reverted_at, withdrawal_id, original_ledger_id`

// InsertEntry inserts a ledger entry. Sale entries populate sale_order_id so
// the unique column rejects a second sale for the same order.
func (s *SQLStore) InsertEntry(ctx context.Context, e *model.LedgerEntry) error {
	var saleOrder sql.NullString
	if e.Type == model.LedgerSale {
		saleOrder = nullString(e.OrderID)
	}

	query := `INSERT INTO ledger_entries (` + ledgerColumns + `, sale_order_id) VALUES (` + placeholders(22) + `)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		e.ID, e.AgentID, e.OrderID, nullInt64(e.UserID), e.Tenant, string(e.Type), string(e.Status),
		e.BasePrice, e.AgentPrice, e.MarkupPerItem, e.Qty, e.Profit,
		toMicros(e.CreatedAt), nullMicros(e.MatureAt), nullMicros(e.MaturedAt), nullMicros(e.WithdrawnAt),
		e.Reverted, nullString(e.RevertReason), nullMicros(e.RevertedAt),
		nullString(e.WithdrawalID), nullString(e.OriginalLedgerID), saleOrder)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("ledger entry for order %s: %w", e.OrderID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// GetEntry returns a ledger entry by id.
func (s *SQLStore) GetEntry(ctx context.Context, id string) (*model.LedgerEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// MarkReverted flags a pending or matured entry as reverted.
func (s *SQLStore) MarkReverted(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE ledger_entries SET reverted = TRUE, revert_reason = ?, reverted_at = ?
		WHERE id = ? AND reverted = FALSE AND type = ? AND status IN (?, ?)`,
		reason, toMicros(at), id, string(model.LedgerSale),
		string(model.LedgerPending), string(model.LedgerMatured))
	if err != nil {
		return false, fmt.Errorf("failed to mark entry reverted: %w", err)
	}
	return n > 0, nil
}

// FindRefundFor returns the refund entry paired with an original.
func (s *SQLStore) FindRefundFor(ctx context.Context, originalID string) (*model.LedgerEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+ledgerColumns+` FROM ledger_entries WHERE original_ledger_id = ?`), originalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refund: %w", err)
	}
	return e, nil
}

// ListRevertedSales returns all sale entries flagged reverted.
func (s *SQLStore) ListRevertedSales(ctx context.Context) ([]model.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE type = ? AND reverted = TRUE ORDER BY reverted_at, id`, string(model.LedgerSale))
}

// MatureDue matures every eligible pending sale entry.
func (s *SQLStore) MatureDue(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.exec(ctx, `UPDATE ledger_entries SET status = ?, matured_at = ?
		WHERE status = ? AND reverted = FALSE AND type = ? AND mature_at <= ?`,
		string(model.LedgerMatured), toMicros(now),
		string(model.LedgerPending), string(model.LedgerSale), toMicros(now))
	if err != nil {
		return 0, fmt.Errorf("failed to mature entries: %w", err)
	}
	return n, nil
}

// SumByStatus totals non-reverted profit per status. Sums are computed in Go
// so money never passes through a floating point column on SQLite.
func (s *SQLStore) SumByStatus(ctx context.Context, agentID string) (map[model.LedgerStatus]decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT status, profit FROM ledger_entries
		WHERE agent_id = ? AND reverted = FALSE AND type = ?`), agentID, string(model.LedgerSale))
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger: %w", err)
	}
	defer rows.Close()

	sums := make(map[model.LedgerStatus]decimal.Decimal)
	for rows.Next() {
		var status string
		var profit decimal.Decimal
		if err := rows.Scan(&status, &profit); err != nil {
			return nil, fmt.Errorf("failed to scan ledger sum: %w", err)
		}
		st := model.LedgerStatus(status)
		sums[st] = sums[st].Add(profit)
	}
	return sums, rows.Err()
}

// ListMatured returns an agent's matured entries oldest first.
func (s *SQLStore) ListMatured(ctx context.Context, agentID string) ([]model.LedgerEntry, error) {
	return s.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE agent_id = ? AND status = ? AND reverted = FALSE
		ORDER BY mature_at, created_at, id`, agentID, string(model.LedgerMatured))
}

// MarkWithdrawn consumes one matured entry for a withdrawal.
func (s *SQLStore) MarkWithdrawn(ctx context.Context, id, withdrawalID, token string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE ledger_entries SET status = ?, withdrawn_at = ?, withdrawal_id = ?, settlement_token = ?
		WHERE id = ? AND status = ? AND reverted = FALSE`,
		string(model.LedgerWithdrawn), toMicros(at), withdrawalID, token, id, string(model.LedgerMatured))
	if err != nil {
		return false, fmt.Errorf("failed to mark entry withdrawn: %w", err)
	}
	return n > 0, nil
}

const restoreWithdrawn = `UPDATE ledger_entries
	SET status = ?, withdrawn_at = NULL, withdrawal_id = NULL, settlement_token = NULL
	WHERE withdrawal_id = ? AND status = ? AND `

// RestoreWithdrawn undoes MarkWithdrawn for the entries one claim consumed.
func (s *SQLStore) RestoreWithdrawn(ctx context.Context, withdrawalID, token string) (int64, error) {
	n, err := s.exec(ctx, restoreWithdrawn+`settlement_token = ?`,
		string(model.LedgerMatured), withdrawalID, string(model.LedgerWithdrawn), token)
	if err != nil {
		return 0, fmt.Errorf("failed to restore entries: %w", err)
	}
	return n, nil
}

// RestoreAbandoned undoes MarkWithdrawn for entries consumed under any other
// claim than keepToken.
func (s *SQLStore) RestoreAbandoned(ctx context.Context, withdrawalID, keepToken string) (int64, error) {
	n, err := s.exec(ctx, restoreWithdrawn+`(settlement_token IS NULL OR settlement_token <> ?)`,
		string(model.LedgerMatured), withdrawalID, string(model.LedgerWithdrawn), keepToken)
	if err != nil {
		return 0, fmt.Errorf("failed to restore abandoned entries: %w", err)
	}
	return n, nil
}

// ListEntries returns an agent's newest entries first.
func (s *SQLStore) ListEntries(ctx context.Context, agentID string, limit int) ([]model.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryEntries(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE agent_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, agentID, limit)
}

func (s *SQLStore) queryEntries(ctx context.Context, query string, args ...any) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*model.LedgerEntry, error) {
	var (
		e                                            model.LedgerEntry
		typ, status                                  string
		userID                                       sql.NullInt64
		created                                      int64
		matureAt, maturedAt, withdrawnAt, revertedAt sql.NullInt64
		reason, withdrawalID, originalID             sql.NullString
	)
	err := row.Scan(&e.ID, &e.AgentID, &e.OrderID, &userID, &e.Tenant, &typ, &status,
		&e.BasePrice, &e.AgentPrice, &e.MarkupPerItem, &e.Qty, &e.Profit,
		&created, &matureAt, &maturedAt, &withdrawnAt, &e.Reverted,
		&reason, &revertedAt, &withdrawalID, &originalID)
	if err != nil {
		return nil, err
	}
	e.Type = model.LedgerType(typ)
	e.Status = model.LedgerStatus(status)
	e.UserID = userID.Int64
	e.CreatedAt = fromMicros(created)
	e.MatureAt = microsPtr(matureAt)
	e.MaturedAt = microsPtr(maturedAt)
	e.WithdrawnAt = microsPtr(withdrawnAt)
	e.RevertedAt = microsPtr(revertedAt)
	e.RevertReason = reason.String
	e.WithdrawalID = withdrawalID.String
	e.OriginalLedgerID = originalID.String
	return &e, nil
}
