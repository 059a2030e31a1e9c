package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/budgetlens/sync-backend/internal/domain/dates"
	"github.com/budgetlens/sync-backend/internal/domain/model"
	"github.com/budgetlens/sync-backend/internal/syncerr"
)

// HTTPConfig configures the HTTP feed client.
type HTTPConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
	RetryMax    int
}

// DefaultHTTPConfig returns sensible defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:  30 * time.Second,
		RetryMax: 3,
	}
}

// HTTPClient implements Client against a REST transaction feed
// (GET /budgets/{id}/transactions with since_date / type /
// last_knowledge_of_server query parameters and bearer-token auth).
type HTTPClient struct {
	config HTTPConfig
	http   *retryablehttp.Client
}

// Compile-time check that HTTPClient implements Client
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a feed client. Transient server errors are retried
// with backoff inside the client; what escapes is already classified.
func NewHTTPClient(config HTTPConfig) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = config.RetryMax
	rc.HTTPClient.Timeout = config.Timeout
	rc.Logger = nil

	return &HTTPClient{config: config, http: rc}
}

// feedResponse mirrors the feed's wire envelope.
type feedResponse struct {
	Data struct {
		Transactions    []feedTransaction `json:"transactions"`
		ServerKnowledge int64             `json:"server_knowledge"`
	} `json:"data"`
}

type feedTransaction struct {
	ID                    string `json:"id"`
	AccountID             string `json:"account_id"`
	MerchantTransactionID string `json:"merchant_transaction_id,omitempty"`
	Date                  string `json:"date"`
	Amount                int64  `json:"amount"`
	Deleted               bool   `json:"deleted"`
}

// FetchTransactions fetches one page of the feed.
func (c *HTTPClient) FetchTransactions(ctx context.Context, budgetID string, since *dates.Date,
	txType TransactionType, lastKnownCursor *int64) (*Page, error) {

	endpoint, err := url.JoinPath(c.config.BaseURL, "budgets", budgetID, "transactions")
	if err != nil {
		return nil, fmt.Errorf("building feed url: %w", err)
	}

	query := url.Values{}
	if since != nil {
		query.Set("since_date", since.String())
	}
	if txType != TypeAll {
		query.Set("type", string(txType))
	}
	if lastKnownCursor != nil {
		query.Set("last_knowledge_of_server", strconv.FormatInt(*lastKnownCursor, 10))
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building feed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts, cancellation, connection failures, and exhausted
		// retries all land here; every one of them is retryable wholesale.
		return nil, syncerr.Transient("ledger fetch", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &syncerr.AuthError{Op: "ledger fetch",
			Err: fmt.Errorf("feed returned status %d", resp.StatusCode)}
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, syncerr.Transient("ledger fetch",
			fmt.Errorf("feed returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ledger fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, syncerr.Transient("ledger fetch", err)
	}

	var decoded feedResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding feed response: %w", err)
	}

	page := &Page{ServerKnowledge: decoded.Data.ServerKnowledge}
	for _, raw := range decoded.Data.Transactions {
		tx, err := raw.toModel()
		if err != nil {
			return nil, err
		}
		page.Transactions = append(page.Transactions, tx)
	}
	return page, nil
}

func (t feedTransaction) toModel() (tx model.LedgerTransaction, err error) {
	postDate, err := dates.Parse(t.Date)
	if err != nil {
		return tx, fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	return model.LedgerTransaction{
		ID:                    t.ID,
		AccountID:             t.AccountID,
		MerchantTransactionID: t.MerchantTransactionID,
		PostDate:              postDate,
		AmountMills:           t.Amount,
		Deleted:               t.Deleted,
	}, nil
}
