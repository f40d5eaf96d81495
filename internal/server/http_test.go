package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"StarLedger/internal/clock"
	"StarLedger/internal/event"
	"StarLedger/internal/ledger"
	"StarLedger/internal/market"
	"StarLedger/internal/observability"
	"StarLedger/internal/progression"
	"StarLedger/internal/server"
	"StarLedger/internal/store"
	"StarLedger/internal/trading"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	srv    *server.Server
	ledger *ledger.ResourceLedger
	store  *store.Memory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(epoch)
	st := store.NewMemory()
	sink := event.NewCapture()
	log := zerolog.Nop()

	l := ledger.New(st, clk, market.NewEngine(clk), sink, log, nil)
	book := trading.NewBook(st, l, sink, log, nil)
	disc := progression.NewStoreDiscovery(st)
	tracker := progression.NewTracker(st, l, disc, sink, log, nil)

	health := observability.NewHealthChecker()
	health.SetReady(true)

	return &fixture{
		srv:    server.New(l, book, tracker, disc, health, log, nil),
		ledger: l,
		store:  st,
	}
}

func (f *fixture) do(t *testing.T, method, path, player string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if player != "" {
		req.Header.Set("X-Player", player)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (f *fixture) fund(t *testing.T, player ledger.Player, resource ledger.Resource, amount int64) {
	t.Helper()
	err := f.store.Update(context.Background(), func(tx store.Tx) error {
		return f.ledger.CreditTx(tx, player, resource, amount)
	})
	if err != nil {
		t.Fatalf("fund %s: %v", player, err)
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// ============================================================================
// Test: resources
// ============================================================================

func TestInitResource_RoundTrip(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/resources", "", map[string]any{
		"resource": "IRON", "base_price": 100,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("init: got %d, body %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/v1/resources/IRON/price", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("price: got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["price"].(float64); got != 100 {
		t.Errorf("price: got %v, want 100", got)
	}
}

func TestInitResource_Duplicate_Conflict(t *testing.T) {
	f := newFixture(t)

	body := map[string]any{"resource": "IRON", "base_price": 100}
	f.do(t, http.MethodPost, "/v1/resources", "", body)
	rec := f.do(t, http.MethodPost, "/v1/resources", "", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("got %d, want 409", rec.Code)
	}
}

func TestPrice_UnknownResource_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/v1/resources/NOPE/price", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

// ============================================================================
// Test: transfers
// ============================================================================

func TestTransfer_RequiresPlayerHeader(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/transfers", "", map[string]any{
		"to": "bob", "resource": "IRON", "amount": 10,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("got %d, want 401", rec.Code)
	}
}

func TestTransfer_OKAndRejected(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", "IRON", 50)

	rec := f.do(t, http.MethodPost, "/v1/transfers", "alice", map[string]any{
		"to": "bob", "resource": "IRON", "amount": 30,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if ok := decodeBody(t, rec)["ok"].(bool); !ok {
		t.Error("transfer should report ok=true")
	}

	rec = f.do(t, http.MethodPost, "/v1/transfers", "alice", map[string]any{
		"to": "bob", "resource": "IRON", "amount": 9999,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d", rec.Code)
	}
	if ok := decodeBody(t, rec)["ok"].(bool); ok {
		t.Error("overdraft transfer should report ok=false")
	}

	rec = f.do(t, http.MethodGet, "/v1/players/bob/balances/IRON", "", nil)
	if got := decodeBody(t, rec)["balance"].(float64); got != 30 {
		t.Errorf("bob balance: got %v, want 30", got)
	}
}

// ============================================================================
// Test: offers
// ============================================================================

func TestOfferLifecycle_OverHTTP(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", "IRON", 100)
	f.fund(t, "bob", "WATER", 100)

	rec := f.do(t, http.MethodPost, "/v1/offers", "alice", map[string]any{
		"sell_resource": "IRON", "sell_amount": 50,
		"buy_resource": "WATER", "buy_amount": 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: got %d, body %s", rec.Code, rec.Body.String())
	}
	id := uint64(decodeBody(t, rec)["offer_id"].(float64))

	rec = f.do(t, http.MethodGet, "/v1/offers", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: got %d", rec.Code)
	}

	// Seller cannot take their own offer.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/offers/%d/accept", id), "alice", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("self trade: got %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/offers/%d/accept", id), "bob", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: got %d, body %s", rec.Code, rec.Body.String())
	}

	// Settled offers cannot be cancelled.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/offers/%d/cancel", id), "alice", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("cancel settled: got %d, want 409", rec.Code)
	}
}

func TestCancelOffer_ByStranger_Forbidden(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/offers", "alice", map[string]any{
		"sell_resource": "IRON", "sell_amount": 10,
		"buy_resource": "WATER", "buy_amount": 5,
	})
	id := uint64(decodeBody(t, rec)["offer_id"].(float64))

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/offers/%d/cancel", id), "mallory", nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("got %d, want 403", rec.Code)
	}
}

func TestAcceptOffer_Unknown_NotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/offers/999/accept", "bob", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("got %d, want 404", rec.Code)
	}
}

// ============================================================================
// Test: missions
// ============================================================================

func TestMissionCompletion_OverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Seed through the tracker; HTTP exposes read and complete only.
	tracker := progressionTrackerOf(t, f)
	id, err := tracker.DefineMission(ctx, progression.Mission{
		Name:   "FIRST_STEPS",
		Reward: progression.Reward{Resource: "ENERGY", Amount: 100},
	})
	if err != nil {
		t.Fatalf("DefineMission: %v", err)
	}

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/missions/%d/complete", id), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: got %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["outcome"].(string); got != "Completed" {
		t.Errorf("outcome: got %s", got)
	}

	// Idempotent retry stays 200 but reports the latch.
	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/missions/%d/complete", id), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("retry: got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["outcome"].(string); got != "AlreadyCompleted" {
		t.Errorf("retry outcome: got %s", got)
	}

	rec = f.do(t, http.MethodGet, "/v1/players/alice/balances/ENERGY", "", nil)
	if got := decodeBody(t, rec)["balance"].(float64); got != 100 {
		t.Errorf("reward balance: got %v, want 100", got)
	}
}

func TestDiscoveryGatedMission_OverHTTP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tracker := progressionTrackerOf(t, f)
	id, err := tracker.DefineMission(ctx, progression.Mission{
		Name:          "EXPLORER",
		Reward:        progression.Reward{Resource: "ENERGY", Amount: 50},
		RequiredStars: []string{"SIRIUS"},
	})
	if err != nil {
		t.Fatalf("DefineMission: %v", err)
	}

	rec := f.do(t, http.MethodPost, fmt.Sprintf("/v1/missions/%d/complete", id), "alice", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("ungated complete: got %d, want 409", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/v1/discoveries", "alice", map[string]any{"star": "SIRIUS"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("discovery: got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, fmt.Sprintf("/v1/missions/%d/complete", id), "alice", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("gated complete after discovery: got %d", rec.Code)
	}
}

// progressionTrackerOf rebuilds a tracker over the fixture's store for seeding.
func progressionTrackerOf(t *testing.T, f *fixture) *progression.Tracker {
	t.Helper()
	disc := progression.NewStoreDiscovery(f.store)
	return progression.NewTracker(f.store, f.ledger, disc, event.Nop{}, zerolog.Nop(), nil)
}

// ============================================================================
// Test: health
// ============================================================================

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz: got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("readyz: got %d", rec.Code)
	}
}
