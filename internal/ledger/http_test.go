package ledger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

func newFeedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func newClient(serverURL string) *HTTPClient {
	cfg := DefaultHTTPConfig()
	cfg.BaseURL = serverURL
	cfg.AccessToken = "test-token"
	cfg.RetryMax = 0
	return NewHTTPClient(cfg)
}

func TestFetchTransactions_DecodesPage(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data": {
				"transactions": [
					{"id": "ltx-1", "account_id": "acct-1", "date": "2024-06-10", "amount": 12345, "deleted": false},
					{"id": "ltx-2", "account_id": "acct-1", "date": "2024-06-11", "amount": -990, "deleted": true}
				],
				"server_knowledge": 77
			}
		}`))
	})

	client := newClient(server.URL)
	since := dates.New(2024, time.June, 1)
	cursor := int64(42)

	page, err := client.FetchTransactions(context.Background(), "budget-1", &since, TypeUncategorized, &cursor)
	require.NoError(t, err)

	assert.Equal(t, "/budgets/budget-1/transactions", gotPath)
	assert.Contains(t, gotQuery, "since_date=2024-06-01")
	assert.Contains(t, gotQuery, "type=uncategorized")
	assert.Contains(t, gotQuery, "last_knowledge_of_server=42")
	assert.Equal(t, "Bearer test-token", gotAuth)

	assert.Equal(t, int64(77), page.ServerKnowledge)
	require.Len(t, page.Transactions, 2)
	assert.Equal(t, "ltx-1", page.Transactions[0].ID)
	assert.Equal(t, int64(12345), page.Transactions[0].AmountMills)
	assert.Equal(t, "2024-06-10", page.Transactions[0].PostDate.String())
	assert.True(t, page.Transactions[1].Deleted)
}

func TestFetchTransactions_OmitsAbsentParams(t *testing.T) {
	var gotQuery string
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"data": {"transactions": [], "server_knowledge": 0}}`))
	})

	client := newClient(server.URL)
	_, err := client.FetchTransactions(context.Background(), "budget-1", nil, TypeAll, nil)
	require.NoError(t, err)
	assert.Empty(t, gotQuery)
}

func TestFetchTransactions_UnauthorizedIsAuthError(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := newClient(server.URL)
	_, err := client.FetchTransactions(context.Background(), "budget-1", nil, TypeAll, nil)
	require.Error(t, err)
	assert.True(t, syncerr.IsAuth(err))
	assert.False(t, syncerr.IsTransient(err))
}

func TestFetchTransactions_ServerErrorIsTransient(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	client := newClient(server.URL)
	_, err := client.FetchTransactions(context.Background(), "budget-1", nil, TypeAll, nil)
	require.Error(t, err)
	assert.True(t, syncerr.IsTransient(err))
}

func TestFetchTransactions_CancelledContextIsTransient(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"data": {"transactions": [], "server_knowledge": 0}}`))
	})

	client := newClient(server.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.FetchTransactions(ctx, "budget-1", nil, TypeAll, nil)
	require.Error(t, err)
	assert.True(t, syncerr.IsTransient(err))
}

func TestFetchTransactions_BadDateSurfacesTransactionID(t *testing.T) {
	server := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"transactions": [{"id": "ltx-bad", "date": "garbage"}], "server_knowledge": 1}}`))
	})

	client := newClient(server.URL)
	_, err := client.FetchTransactions(context.Background(), "budget-1", nil, TypeAll, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ltx-bad")
}
