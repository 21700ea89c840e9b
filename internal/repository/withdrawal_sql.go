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

const withdrawalColumns = `id, agent_id, amount, wallet_address, status, requested_at,
	approved_at, approved_by_admin_id, paid_at, paid_by_admin_id, rejected_at, rejected_by_admin_id,
	txid, admin_note, claim_token, claimed_at`

// InsertWithdrawal inserts a new withdrawal request.
func (s *SQLStore) InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	query := `INSERT INTO withdrawals (` + withdrawalColumns + `) VALUES (` + placeholders(16) + `)`

	_, err := s.db.ExecContext(ctx, s.rebind(query),
		w.ID, w.AgentID, w.Amount, w.WalletAddress, string(w.Status), toMicros(w.RequestedAt),
		nullMicros(w.ApprovedAt), nullInt64(w.ApprovedByAdminID), nullMicros(w.PaidAt), nullInt64(w.PaidByAdminID),
		nullMicros(w.RejectedAt), nullInt64(w.RejectedByAdminID), nullString(w.TxID), nullString(w.AdminNote),
		nullString(w.ClaimToken), nullMicros(w.ClaimedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("withdrawal %s: %w", w.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert withdrawal: %w", err)
	}
	return nil
}

// GetWithdrawal returns a withdrawal by id.
func (s *SQLStore) GetWithdrawal(ctx context.Context, id string) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}
	return w, nil
}

// ListWithdrawals returns withdrawals newest first.
func (s *SQLStore) ListWithdrawals(ctx context.Context, agentID string, status model.WithdrawalStatus) ([]model.Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE 1 = 1`
	var args []any
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}
	defer rows.Close()

	var out []model.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// ApproveWithdrawal moves requested to approved.
func (s *SQLStore) ApproveWithdrawal(ctx context.Context, id string, adminID int64, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE withdrawals SET status = ?, approved_at = ?, approved_by_admin_id = ?
		WHERE id = ? AND status = ?`,
		string(model.WithdrawalApproved), toMicros(at), adminID, id, string(model.WithdrawalRequested))
	if err != nil {
		return false, fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	return n > 0, nil
}

// RejectWithdrawal moves requested, or unclaimed approved, to rejected.
func (s *SQLStore) RejectWithdrawal(ctx context.Context, id string, adminID int64, note string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE withdrawals SET status = ?, rejected_at = ?, rejected_by_admin_id = ?, admin_note = ?
		WHERE id = ? AND (status = ? OR (status = ? AND claim_token IS NULL))`,
		string(model.WithdrawalRejected), toMicros(at), adminID, note, id,
		string(model.WithdrawalRequested), string(model.WithdrawalApproved))
	if err != nil {
		return false, fmt.Errorf("failed to reject withdrawal: %w", err)
	}
	return n > 0, nil
}

// ClaimWithdrawal takes the settlement lease.
func (s *SQLStore) ClaimWithdrawal(ctx context.Context, id, token string, at, staleBefore time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE withdrawals SET claim_token = ?, claimed_at = ?
		WHERE id = ? AND status = ? AND (claim_token IS NULL OR claimed_at < ?)`,
		token, toMicros(at), id, string(model.WithdrawalApproved), toMicros(staleBefore))
	if err != nil {
		return false, fmt.Errorf("failed to claim withdrawal: %w", err)
	}
	return n > 0, nil
}

// ReleaseWithdrawalClaim drops a lease held by token.
func (s *SQLStore) ReleaseWithdrawalClaim(ctx context.Context, id, token string) error {
	_, err := s.exec(ctx, `UPDATE withdrawals SET claim_token = NULL, claimed_at = NULL
		WHERE id = ? AND claim_token = ?`, id, token)
	if err != nil {
		return fmt.Errorf("failed to release withdrawal claim: %w", err)
	}
	return nil
}

// MarkWithdrawalPaid completes a claimed, approved withdrawal.
func (s *SQLStore) MarkWithdrawalPaid(ctx context.Context, id, token, txid string, adminID int64, at time.Time) (bool, error) {
	n, err := s.exec(ctx, `UPDATE withdrawals
		SET status = ?, paid_at = ?, paid_by_admin_id = ?, txid = ?, claim_token = NULL, claimed_at = NULL
		WHERE id = ? AND status = ? AND claim_token = ?`,
		string(model.WithdrawalPaid), toMicros(at), adminID, txid, id, string(model.WithdrawalApproved), token)
	if err != nil {
		return false, fmt.Errorf("failed to mark withdrawal paid: %w", err)
	}
	return n > 0, nil
}

// SumOutstanding totals requested and approved withdrawals for an agent.
func (s *SQLStore) SumOutstanding(ctx context.Context, agentID string) (decimal.Decimal, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT amount FROM withdrawals WHERE agent_id = ? AND status IN (?, ?)`),
		agentID, string(model.WithdrawalRequested), string(model.WithdrawalApproved))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum withdrawals: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan withdrawal amount: %w", err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

func scanWithdrawal(row rowScanner) (*model.Withdrawal, error) {
	var (
		w                              model.Withdrawal
		status                         string
		requested                      int64
		approvedAt, paidAt, rejectedAt sql.NullInt64
		approvedBy, paidBy, rejectedBy sql.NullInt64
		txid, note, claimToken         sql.NullString
		claimedAt                      sql.NullInt64
	)
	err := row.Scan(&w.ID, &w.AgentID, &w.Amount, &w.WalletAddress, &status, &requested,
		&approvedAt, &approvedBy, &paidAt, &paidBy, &rejectedAt, &rejectedBy,
		&txid, &note, &claimToken, &claimedAt)
	if err != nil {
		return nil, err
	}
	w.Status = model.WithdrawalStatus(status)
	w.RequestedAt = fromMicros(requested)
	w.ApprovedAt = microsPtr(approvedAt)
	w.ApprovedByAdminID = approvedBy.Int64
	w.PaidAt = microsPtr(paidAt)
	w.PaidByAdminID = paidBy.Int64
	w.RejectedAt = microsPtr(rejectedAt)
	w.RejectedByAdminID = rejectedBy.Int64
	w.TxID = txid.String
	w.AdminNote = note.String
	w.ClaimToken = claimToken.String
	w.ClaimedAt = microsPtr(claimedAt)
	return &w, nil
}
