package storage

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
)

// MockRepository is an in-memory Repository for tests and dry runs.
// All methods are safe for concurrent use.
type MockRepository struct {
	mu sync.RWMutex

	bankTxns     map[string]*model.BankTransaction // by id
	orders       map[string]*model.MerchantOrder   // by id
	appTxns      map[string]*model.AppTransaction  // by id
	cursors      map[string]*model.SyncCursor      // by budget id
	detailStates map[string]model.DetailState      // by ledger transaction id

	// Optional failure injection for orchestrator recovery tests.
	FailPutDetailState error
	FailSaveCursor     error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates an empty in-memory repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		bankTxns:     make(map[string]*model.BankTransaction),
		orders:       make(map[string]*model.MerchantOrder),
		appTxns:      make(map[string]*model.AppTransaction),
		cursors:      make(map[string]*model.SyncCursor),
		detailStates: make(map[string]model.DetailState),
	}
}

func (m *MockRepository) Close() error { return nil }

func (m *MockRepository) SaveBankTransaction(tx *model.BankTransaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.bankTxns {
		if existing.AccountID == tx.AccountID && existing.BankTransactionID == tx.BankTransactionID {
			tx.ID = existing.ID
			cp := *tx
			cp.SchemaVersion = model.SchemaVersion
			m.bankTxns[existing.ID] = &cp
			return existing.ID, nil
		}
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	cp := *tx
	cp.SchemaVersion = model.SchemaVersion
	m.bankTxns[tx.ID] = &cp
	return tx.ID, nil
}

func (m *MockRepository) GetBankTransaction(id string) (*model.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.bankTxns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MockRepository) GetBankTransactionByNaturalKey(accountID, bankTransactionID string) (*model.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.bankTxns {
		if tx.AccountID == accountID && tx.BankTransactionID == bankTransactionID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockRepository) ListUnlinkedBankTransactions(accountID string) ([]*model.BankTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txns []*model.BankTransaction
	for _, tx := range m.bankTxns {
		if tx.AccountID == accountID && tx.OrderID == "" {
			cp := *tx
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].PostDate.Before(txns[j].PostDate) })
	return txns, nil
}

func (m *MockRepository) LinkBankTransactionToOrder(id, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.bankTxns[id]
	if !ok {
		return ErrNotFound
	}
	tx.OrderID = orderID
	return nil
}

func (m *MockRepository) SaveMerchantOrder(o *model.MerchantOrder) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.orders {
		if existing.MerchantID == o.MerchantID && existing.OrderID == o.OrderID {
			o.ID = existing.ID
			cp := *o
			cp.SchemaVersion = model.SchemaVersion
			m.orders[existing.ID] = &cp
			return existing.ID, nil
		}
	}

	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	cp := *o
	cp.SchemaVersion = model.SchemaVersion
	m.orders[o.ID] = &cp
	return o.ID, nil
}

func (m *MockRepository) GetMerchantOrder(id string) (*model.MerchantOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockRepository) GetMerchantOrderByNaturalKey(merchantID, orderID string) (*model.MerchantOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.orders {
		if o.MerchantID == merchantID && o.OrderID == orderID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockRepository) ListMerchantOrdersInWindow(from, to dates.Date) ([]*model.MerchantOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []*model.MerchantOrder
	for _, o := range m.orders {
		if !o.OrderDate.Before(from) && !o.OrderDate.After(to) {
			cp := *o
			orders = append(orders, &cp)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderDate.Before(orders[j].OrderDate) })
	return orders, nil
}

func (m *MockRepository) SaveAppTransaction(tx *model.AppTransaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.appTxns {
		if existing.AppTransactionID == tx.AppTransactionID {
			tx.ID = existing.ID
			cp := *tx
			cp.SchemaVersion = model.SchemaVersion
			m.appTxns[existing.ID] = &cp
			return existing.ID, nil
		}
	}

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	cp := *tx
	cp.SchemaVersion = model.SchemaVersion
	m.appTxns[tx.ID] = &cp
	return tx.ID, nil
}

func (m *MockRepository) GetAppTransaction(id string) (*model.AppTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.appTxns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MockRepository) GetAppTransactionByNaturalKey(appTransactionID string) (*model.AppTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, tx := range m.appTxns {
		if tx.AppTransactionID == appTransactionID {
			cp := *tx
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MockRepository) ListAppTransactionsByState(state model.SyncState, limit int) ([]*model.AppTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var txns []*model.AppTransaction
	for _, tx := range m.appTxns {
		if tx.SyncState == state {
			cp := *tx
			txns = append(txns, &cp)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[j].PostDate.Before(txns[i].PostDate) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (m *MockRepository) SyncStateStats() (map[model.SyncState]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[model.SyncState]int)
	for _, tx := range m.appTxns {
		stats[tx.SyncState]++
	}
	return stats, nil
}

func (m *MockRepository) GetCursor(budgetID string) (*model.SyncCursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cursors[budgetID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *MockRepository) SaveCursor(c *model.SyncCursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaveCursor != nil {
		return m.FailSaveCursor
	}
	cp := *c
	cp.SchemaVersion = model.SchemaVersion
	m.cursors[c.BudgetID] = &cp
	return nil
}

func (m *MockRepository) GetDetailState(transactionID string) (model.DetailState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.detailStates[transactionID]
	return state, ok, nil
}

func (m *MockRepository) PutDetailState(transactionID string, state model.DetailState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailPutDetailState != nil {
		return m.FailPutDetailState
	}
	m.detailStates[transactionID] = state
	return nil
}

func (m *MockRepository) CountDetailStates(state model.DetailState) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.detailStates {
		if s == state {
			count++
		}
	}
	return count, nil
}
