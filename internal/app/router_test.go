package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
	_ "github.com/odyssey-erp/odyssey-ledger/internal/testing/guard"
	"github.com/odyssey-erp/odyssey-ledger/internal/tenancy"
)

func memoryConfig() *Config {
	return &Config{
		AppEnv:             "test",
		StorageDriver:      StorageMemory,
		SequenceBackend:    SequenceMemory,
		PostingMode:        PostingInline,
		RateLimitPerMinute: 0,
		SeedTenantName:     "Harbour Hotel",
		SeedOwnerID:        7,
	}
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	userID  string
}

func (c apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.userID != "" {
		req.Header.Set(tenancy.UserHeader, c.userID)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	c, err := Build(context.Background(), memoryConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return NewRouter(c.Handlers())
}

func TestRouterServesLedgerForOwner(t *testing.T) {
	api := apiClient{t: t, handler: newTestRouter(t), userID: "7"}

	rec := api.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	var cash, revenue accounting.Account
	rec = api.do(http.MethodPost, "/api/tenants/1/accounts", map[string]any{"name": "Cash", "type": "asset", "subtype": "CASH"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cash))
	require.Equal(t, "1000", cash.Code)

	rec = api.do(http.MethodPost, "/api/tenants/1/accounts", map[string]any{"name": "Room Revenue", "type": "income"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&revenue))

	rec = api.do(http.MethodPost, "/api/tenants/1/journal-entries", map[string]any{
		"date":        "2025-04-01T00:00:00Z",
		"description": "Walk-in guest",
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": 15000},
			{"account_id": revenue.ID, "credit": 15000},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/tenants/1/journal-entries", map[string]any{
		"lines": []map[string]any{
			{"account_id": cash.ID, "debit": 100},
			{"account_id": revenue.ID, "credit": 90},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var problem httpx.ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	require.Equal(t, "UNBALANCED", problem.Code)

	rec = api.do(http.MethodGet, "/api/tenants/1/reports/trial-balance", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tb struct {
		TotalDebit  int64 `json:"total_debit"`
		TotalCredit int64 `json:"total_credit"`
		Net         int64 `json:"net"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tb))
	require.Equal(t, int64(15000), tb.TotalDebit)
	require.Zero(t, tb.Net)

	rec = api.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "odyssey_journal_entries_total")
}

func TestRouterRejectsOutsiders(t *testing.T) {
	handler := newTestRouter(t)

	rec := apiClient{t: t, handler: handler}.do(http.MethodGet, "/api/tenants/1/accounts", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = apiClient{t: t, handler: handler, userID: "99"}.do(http.MethodGet, "/api/tenants/1/accounts", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = apiClient{t: t, handler: handler, userID: "7"}.do(http.MethodGet, "/api/tenants/42/accounts", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConfigValidate(t *testing.T) {
	cfg := memoryConfig()
	require.NoError(t, cfg.Validate())

	bad := *cfg
	bad.SequenceBackend = SequencePostgres
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.StorageDriver = "sqlite"
	require.Error(t, bad.Validate())

	bad = *cfg
	bad.PostingMode = PostingQueue
	require.Error(t, bad.Validate())
	bad.RedisAddr = "127.0.0.1:6379"
	require.NoError(t, bad.Validate())

	require.False(t, cfg.IsProduction())
	var nilCfg *Config
	require.False(t, nilCfg.IsProduction())
}

func TestLoadConfigInTestProcess(t *testing.T) {
	require.True(t, InTestMode())

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, StorageMemory, cfg.StorageDriver)
	require.Equal(t, PostingInline, cfg.PostingMode)
	require.False(t, cfg.needsRedis())

	t.Setenv("REDIS_DB", "4")
	cfg, err = LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 4, cfg.RedisOptions().AsynqOpts().DB)
}
