package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/venuesim/internal/market"
)

func newTestServer() (*Server, *market.Manager) {
	mgr := market.NewManager(zap.NewNop().Sugar())
	return New(mgr, zap.NewNop()), mgr
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

const startBody = `{
	"name": "m1",
	"type": "equity",
	"parties": [{"trader": "BRKA", "tradergroup": "GA", "firm": "FA"}],
	"order_entry": [{"username": "usera", "brokerid": "BRKA"}]
}`

func TestHealthz(t *testing.T) {
	s, _ := newTestServer()
	w := do(s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStartListAndStopMarket(t *testing.T) {
	s, mgr := newTestServer()

	w := do(s, http.MethodPost, "/markets", startBody)
	require.Equal(t, http.StatusCreated, w.Code)
	_, ok := mgr.Get("m1")
	assert.True(t, ok)

	// Duplicate names conflict.
	w = do(s, http.MethodPost, "/markets", startBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(s, http.MethodGet, "/markets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "m1", list[0]["name"])

	w = do(s, http.MethodDelete, "/markets/m1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok = mgr.Get("m1")
	assert.False(t, ok)

	w = do(s, http.MethodDelete, "/markets/m1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartMarketValidation(t *testing.T) {
	s, _ := newTestServer()

	w := do(s, http.MethodPost, "/markets", `{"name": "m1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodPost, "/markets", `{"name": "m1", "type": "bonds"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOrdersAndNewsOnMissingMarket(t *testing.T) {
	s, _ := newTestServer()

	w := do(s, http.MethodGet, "/markets/nope/orders", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(s, http.MethodPost, "/markets/nope/news", `{"Headline": "x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetSessionBehavior(t *testing.T) {
	s, _ := newTestServer()
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/markets", startBody).Code)

	body := `{"gateway": "order-entry", "account": "usera", "patch": {"outgoingSeqNum": 42}}`
	w := do(s, http.MethodPost, "/markets/m1/sessions/reset", body)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Unknown gateway names fail validation before any lookup.
	w = do(s, http.MethodPost, "/markets/m1/sessions/reset", `{"gateway": "settlement", "account": "usera"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(s, http.MethodPost, "/markets/nope/sessions/reset", body)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListInstrumentsWithoutTable(t *testing.T) {
	s, _ := newTestServer()
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/markets", startBody).Code)

	w := do(s, http.MethodGet, "/markets/m1/instruments", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestListOrdersEmptyMarket(t *testing.T) {
	s, _ := newTestServer()
	require.Equal(t, http.StatusCreated, do(s, http.MethodPost, "/markets", startBody).Code)

	w := do(s, http.MethodGet, "/markets/m1/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(s, http.MethodGet, "/markets/m1/trades", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
