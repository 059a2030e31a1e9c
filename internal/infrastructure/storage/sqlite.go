package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
)

// Storage provides SQLite-backed record storage.
// It implements the Repository interface.
type Storage struct {
	db *sql.DB
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable foreign key constraints (SQLite-specific)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db}

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveBankTransaction upserts a bank transaction by its natural key.
// An existing row keeps its id; the upsert is safe to retry.
func (s *Storage) SaveBankTransaction(tx *model.BankTransaction) (string, error) {
	existing, err := s.GetBankTransactionByNaturalKey(tx.AccountID, tx.BankTransactionID)
	if err != nil && err != ErrNotFound {
		return "", err
	}

	if existing != nil {
		query := `
		UPDATE bank_transactions
		SET order_id = ?, post_date = ?, amount_mills = ?, schema_version = ?
		WHERE id = ?
		`
		_, err := s.db.Exec(query, tx.OrderID, tx.PostDate.String(), tx.AmountMills, model.SchemaVersion, existing.ID)
		if err != nil {
			return "", err
		}
		tx.ID = existing.ID
		return existing.ID, nil
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	query := `
	INSERT INTO bank_transactions
	(id, account_id, order_id, bank_transaction_id, post_date, amount_mills, schema_version)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, tx.ID, tx.AccountID, tx.OrderID, tx.BankTransactionID,
		tx.PostDate.String(), tx.AmountMills, model.SchemaVersion)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (s *Storage) GetBankTransaction(id string) (*model.BankTransaction, error) {
	query := `
	SELECT id, account_id, order_id, bank_transaction_id, post_date, amount_mills, schema_version
	FROM bank_transactions WHERE id = ?
	`
	return scanBankTransaction(s.db.QueryRow(query, id))
}

func (s *Storage) GetBankTransactionByNaturalKey(accountID, bankTransactionID string) (*model.BankTransaction, error) {
	query := `
	SELECT id, account_id, order_id, bank_transaction_id, post_date, amount_mills, schema_version
	FROM bank_transactions WHERE account_id = ? AND bank_transaction_id = ?
	`
	return scanBankTransaction(s.db.QueryRow(query, accountID, bankTransactionID))
}

func (s *Storage) ListUnlinkedBankTransactions(accountID string) ([]*model.BankTransaction, error) {
	query := `
	SELECT id, account_id, order_id, bank_transaction_id, post_date, amount_mills, schema_version
	FROM bank_transactions WHERE account_id = ? AND order_id = ''
	ORDER BY post_date ASC
	`
	rows, err := s.db.Query(query, accountID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txns []*model.BankTransaction
	for rows.Next() {
		tx, err := scanBankTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, rows.Err()
}

func (s *Storage) LinkBankTransactionToOrder(id, orderID string) error {
	result, err := s.db.Exec(`UPDATE bank_transactions SET order_id = ? WHERE id = ?`, orderID, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMerchantOrder upserts a merchant order by its natural key.
func (s *Storage) SaveMerchantOrder(o *model.MerchantOrder) (string, error) {
	existing, err := s.GetMerchantOrderByNaturalKey(o.MerchantID, o.OrderID)
	if err != nil && err != ErrNotFound {
		return "", err
	}

	if existing != nil {
		query := `UPDATE merchant_orders SET order_date = ?, amount_mills = ?, schema_version = ? WHERE id = ?`
		if _, err := s.db.Exec(query, o.OrderDate.String(), o.AmountMills, model.SchemaVersion, existing.ID); err != nil {
			return "", err
		}
		o.ID = existing.ID
		return existing.ID, nil
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	query := `
	INSERT INTO merchant_orders (id, merchant_id, order_id, order_date, amount_mills, schema_version)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, o.ID, o.MerchantID, o.OrderID, o.OrderDate.String(), o.AmountMills, model.SchemaVersion); err != nil {
		return "", err
	}
	return o.ID, nil
}

func (s *Storage) GetMerchantOrder(id string) (*model.MerchantOrder, error) {
	query := `SELECT id, merchant_id, order_id, order_date, amount_mills, schema_version FROM merchant_orders WHERE id = ?`
	return scanMerchantOrder(s.db.QueryRow(query, id))
}

func (s *Storage) GetMerchantOrderByNaturalKey(merchantID, orderID string) (*model.MerchantOrder, error) {
	query := `SELECT id, merchant_id, order_id, order_date, amount_mills, schema_version FROM merchant_orders WHERE merchant_id = ? AND order_id = ?`
	return scanMerchantOrder(s.db.QueryRow(query, merchantID, orderID))
}

func (s *Storage) ListMerchantOrdersInWindow(from, to dates.Date) ([]*model.MerchantOrder, error) {
	// ISO-8601 strings sort lexicographically in date order.
	query := `
	SELECT id, merchant_id, order_id, order_date, amount_mills, schema_version
	FROM merchant_orders WHERE order_date >= ? AND order_date <= ?
	ORDER BY order_date ASC
	`
	rows, err := s.db.Query(query, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []*model.MerchantOrder
	for rows.Next() {
		o, err := scanMerchantOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveAppTransaction upserts an app transaction by its natural key.
func (s *Storage) SaveAppTransaction(tx *model.AppTransaction) (string, error) {
	existing, err := s.GetAppTransactionByNaturalKey(tx.AppTransactionID)
	if err != nil && err != ErrNotFound {
		return "", err
	}

	if existing != nil {
		query := `
		UPDATE app_transactions
		SET application_id = ?, account_id = ?, ledger_transaction_id = ?, app_account_id = ?,
		    merchant_transaction_id = ?, post_date = ?, amount_mills = ?, sync_state = ?, schema_version = ?
		WHERE id = ?
		`
		_, err := s.db.Exec(query, tx.ApplicationID, tx.AccountID, tx.LedgerTransactionID,
			tx.AppAccountID, tx.MerchantTransactionID, tx.PostDate.String(), tx.AmountMills,
			string(tx.SyncState), model.SchemaVersion, existing.ID)
		if err != nil {
			return "", err
		}
		tx.ID = existing.ID
		return existing.ID, nil
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	query := `
	INSERT INTO app_transactions
	(id, application_id, account_id, ledger_transaction_id, app_account_id,
	 app_transaction_id, merchant_transaction_id, post_date, amount_mills, sync_state, schema_version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query, tx.ID, tx.ApplicationID, tx.AccountID, tx.LedgerTransactionID,
		tx.AppAccountID, tx.AppTransactionID, tx.MerchantTransactionID, tx.PostDate.String(),
		tx.AmountMills, string(tx.SyncState), model.SchemaVersion)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (s *Storage) GetAppTransaction(id string) (*model.AppTransaction, error) {
	query := appTransactionSelect + ` WHERE id = ?`
	return scanAppTransaction(s.db.QueryRow(query, id))
}

func (s *Storage) GetAppTransactionByNaturalKey(appTransactionID string) (*model.AppTransaction, error) {
	query := appTransactionSelect + ` WHERE app_transaction_id = ?`
	return scanAppTransaction(s.db.QueryRow(query, appTransactionID))
}

func (s *Storage) ListAppTransactionsByState(state model.SyncState, limit int) ([]*model.AppTransaction, error) {
	query := appTransactionSelect + ` WHERE sync_state = ? ORDER BY post_date DESC`
	args := []any{string(state)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txns []*model.AppTransaction
	for rows.Next() {
		tx, err := scanAppTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, tx)
	}
	return txns, rows.Err()
}

func (s *Storage) SyncStateStats() (map[model.SyncState]int, error) {
	rows, err := s.db.Query(`SELECT sync_state, COUNT(*) FROM app_transactions GROUP BY sync_state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	stats := make(map[model.SyncState]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[model.SyncState(state)] = count
	}
	return stats, rows.Err()
}

// GetCursor returns the server-knowledge cursor for a budget.
func (s *Storage) GetCursor(budgetID string) (*model.SyncCursor, error) {
	query := `SELECT budget_id, server_knowledge, schema_version FROM sync_cursors WHERE budget_id = ?`

	c := &model.SyncCursor{}
	err := s.db.QueryRow(query, budgetID).Scan(&c.BudgetID, &c.ServerKnowledge, &c.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := model.CheckSchemaVersion("sync_cursor", c.BudgetID, c.SchemaVersion); err != nil {
		return nil, err
	}
	return c, nil
}

// SaveCursor overwrites the stored watermark for a budget.
func (s *Storage) SaveCursor(c *model.SyncCursor) error {
	query := `
	INSERT INTO sync_cursors (budget_id, server_knowledge, schema_version, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(budget_id) DO UPDATE SET
		server_knowledge = excluded.server_knowledge,
		schema_version = excluded.schema_version,
		updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, c.BudgetID, c.ServerKnowledge, model.SchemaVersion)
	return err
}

func (s *Storage) GetDetailState(transactionID string) (model.DetailState, bool, error) {
	query := `SELECT state, schema_version FROM detail_states WHERE transaction_id = ?`

	var state string
	var schemaVersion int
	err := s.db.QueryRow(query, transactionID).Scan(&state, &schemaVersion)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if err := model.CheckSchemaVersion("detail_state", transactionID, schemaVersion); err != nil {
		return "", false, err
	}
	return model.DetailState(state), true, nil
}

func (s *Storage) PutDetailState(transactionID string, state model.DetailState) error {
	query := `
	INSERT INTO detail_states (transaction_id, state, schema_version, updated_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(transaction_id) DO UPDATE SET
		state = excluded.state,
		schema_version = excluded.schema_version,
		updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, transactionID, string(state), model.SchemaVersion)
	return err
}

func (s *Storage) CountDetailStates(state model.DetailState) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM detail_states WHERE state = ?`, string(state)).Scan(&count)
	return count, err
}

const appTransactionSelect = `
	SELECT id, application_id, account_id, ledger_transaction_id, app_account_id,
	       app_transaction_id, merchant_transaction_id, post_date, amount_mills, sync_state, schema_version
	FROM app_transactions`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBankTransaction(row rowScanner) (*model.BankTransaction, error) {
	tx := &model.BankTransaction{}
	var postDate string
	err := row.Scan(&tx.ID, &tx.AccountID, &tx.OrderID, &tx.BankTransactionID,
		&postDate, &tx.AmountMills, &tx.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := model.CheckSchemaVersion("bank_transaction", tx.BankTransactionID, tx.SchemaVersion); err != nil {
		return nil, err
	}
	if tx.PostDate, err = dates.Parse(postDate); err != nil {
		return nil, err
	}
	return tx, nil
}

func scanMerchantOrder(row rowScanner) (*model.MerchantOrder, error) {
	o := &model.MerchantOrder{}
	var orderDate string
	err := row.Scan(&o.ID, &o.MerchantID, &o.OrderID, &orderDate, &o.AmountMills, &o.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := model.CheckSchemaVersion("merchant_order", o.OrderID, o.SchemaVersion); err != nil {
		return nil, err
	}
	if o.OrderDate, err = dates.Parse(orderDate); err != nil {
		return nil, err
	}
	return o, nil
}

func scanAppTransaction(row rowScanner) (*model.AppTransaction, error) {
	tx := &model.AppTransaction{}
	var postDate, syncState string
	err := row.Scan(&tx.ID, &tx.ApplicationID, &tx.AccountID, &tx.LedgerTransactionID,
		&tx.AppAccountID, &tx.AppTransactionID, &tx.MerchantTransactionID,
		&postDate, &tx.AmountMills, &syncState, &tx.SchemaVersion)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := model.CheckSchemaVersion("app_transaction", tx.AppTransactionID, tx.SchemaVersion); err != nil {
		return nil, err
	}
	if tx.PostDate, err = dates.Parse(postDate); err != nil {
		return nil, err
	}
	tx.SyncState = model.SyncState(syncState)
	return tx, nil
}
