package repository

import "strings"

// Table layout shared by every dialect. Column types are filled in per dialect.
const (
	agentsTable = `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id {id} PRIMARY KEY,
		name {str} NOT NULL,
		status {id} NOT NULL,
		markup_type {id} NOT NULL,
		markup_value {money} NOT NULL,
		wallet_address {str} NOT NULL DEFAULT '',
		min_withdrawal {money} NOT NULL,
		owner_user_id BIGINT,
		bot_token_encrypted {blob} NOT NULL,
		created_by_admin_id BIGINT,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`

	inventoryTable = `
	CREATE TABLE IF NOT EXISTS inventory_units (
		id {id} PRIMARY KEY,
		product_id {id} NOT NULL,
		state INTEGER NOT NULL DEFAULT 0,
		sold_to_user_id BIGINT,
		reserved_at BIGINT,
		reservation_id {id},
		created_at BIGINT NOT NULL
	)`

	ledgerTable = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id {id} PRIMARY KEY,
		agent_id {id} NOT NULL,
		order_id {str} NOT NULL,
		sale_order_id {str} UNIQUE,
		user_id BIGINT,
		tenant {str} NOT NULL DEFAULT '',
		type {id} NOT NULL,
		status {id} NOT NULL,
		base_price {money} NOT NULL,
		agent_price {money} NOT NULL,
		markup_per_item {money} NOT NULL,
		qty INTEGER NOT NULL,
		profit {money} NOT NULL,
		created_at BIGINT NOT NULL,
		mature_at BIGINT,
		matured_at BIGINT,
		withdrawn_at BIGINT,
		reverted {bool} NOT NULL DEFAULT FALSE,
		revert_reason {str},
		reverted_at BIGINT,
		withdrawal_id {id},
		settlement_token {id},
		original_ledger_id {id} UNIQUE
	)`

	withdrawalsTable = `
	CREATE TABLE IF NOT EXISTS withdrawals (
		id {id} PRIMARY KEY,
		agent_id {id} NOT NULL,
		amount {money} NOT NULL,
		wallet_address {str} NOT NULL,
		status {id} NOT NULL,
		requested_at BIGINT NOT NULL,
		approved_at BIGINT,
		approved_by_admin_id BIGINT,
		paid_at BIGINT,
		paid_by_admin_id BIGINT,
		rejected_at BIGINT,
		rejected_by_admin_id BIGINT,
		txid {str},
		admin_note {str},
		claim_token {id},
		claimed_at BIGINT
	)`
)

var schemaIndexes = []string{
	`CREATE INDEX {ine} idx_agents_status ON agents(status)`,
	`CREATE INDEX {ine} idx_inventory_product_state ON inventory_units(product_id, state)`,
	`CREATE INDEX {ine} idx_inventory_reservation ON inventory_units(reservation_id)`,
	`CREATE INDEX {ine} idx_ledger_agent_status ON ledger_entries(agent_id, status, mature_at)`,
	`CREATE INDEX {ine} idx_ledger_status_mature ON ledger_entries(status, mature_at)`,
	`CREATE INDEX {ine} idx_ledger_withdrawal ON ledger_entries(withdrawal_id)`,
	`CREATE INDEX {ine} idx_withdrawals_agent_status ON withdrawals(agent_id, status)`,
}

// schemaFor renders the DDL for a dialect.
func schemaFor(d Dialect) []string {
	var r *strings.Replacer
	switch d {
	case DialectPostgres:
		r = strings.NewReplacer(
			"{id}", "VARCHAR(64)", "{str}", "TEXT", "{blob}", "TEXT",
			"{money}", "NUMERIC(18,2)", "{bool}", "BOOLEAN", "{ine}", "IF NOT EXISTS")
	case DialectMySQL:
		// MySQL has no CREATE INDEX IF NOT EXISTS; Migrate skips duplicate key names.
		r = strings.NewReplacer(
			"{id}", "VARCHAR(64)", "{str}", "VARCHAR(255)", "{blob}", "TEXT",
			"{money}", "DECIMAL(18,2)", "{bool}", "BOOLEAN", "{ine}", "")
	default:
		r = strings.NewReplacer(
			"{id}", "TEXT", "{str}", "TEXT", "{blob}", "TEXT",
			"{money}", "TEXT", "{bool}", "INTEGER", "{ine}", "IF NOT EXISTS")
	}

	stmts := make([]string, 0, 4+len(schemaIndexes))
	for _, t := range []string{agentsTable, inventoryTable, ledgerTable, withdrawalsTable} {
		stmts = append(stmts, r.Replace(t))
	}
	for _, idx := range schemaIndexes {
		stmts = append(stmts, r.Replace(idx))
	}
	return stmts
}
