package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"StarLedger/internal/ledger"
	"StarLedger/internal/observability"
	"StarLedger/internal/progression"
	"StarLedger/internal/trading"
)

// Server is the HTTP surface over the economic core. The caller identity is
// the X-Player header; requests without one are rejected on mutating routes.
type Server struct {
	ledger    *ledger.ResourceLedger
	book      *trading.Book
	tracker   *progression.Tracker
	discovery *progression.StoreDiscovery
	health    *observability.HealthChecker
	log       zerolog.Logger
	metrics   *observability.Metrics
	mux       *chi.Mux
}

func New(
	l *ledger.ResourceLedger,
	book *trading.Book,
	tracker *progression.Tracker,
	discovery *progression.StoreDiscovery,
	health *observability.HealthChecker,
	log zerolog.Logger,
	metrics *observability.Metrics,
) *Server {
	s := &Server{
		ledger:    l,
		book:      book,
		tracker:   tracker,
		discovery: discovery,
		health:    health,
		log:       log,
		metrics:   metrics,
		mux:       chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.observe)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/resources", s.handleInitResource)
		r.Get("/resources/{resource}/price", s.handlePrice)
		r.Get("/resources/{resource}/trend", s.handleTrend)

		r.Get("/players/{player}/balances/{resource}", s.handleBalance)
		r.Get("/players/{player}/history", s.handleHistory)
		r.Get("/players/{player}/offers", s.handlePlayerOffers)
		r.Get("/players/{player}/missions", s.handlePlayerMissions)
		r.Get("/players/{player}/achievements", s.handlePlayerAchievements)

		r.Post("/transfers", s.handleTransfer)
		r.Post("/trades/buy", s.handleBuy)
		r.Post("/trades/sell", s.handleSell)

		r.Post("/offers", s.handleCreateOffer)
		r.Get("/offers", s.handleListOffers)
		r.Get("/offers/{id}", s.handleOfferDetails)
		r.Post("/offers/{id}/accept", s.handleAcceptOffer)
		r.Post("/offers/{id}/cancel", s.handleCancelOffer)

		r.Get("/missions", s.handleListMissions)
		r.Get("/missions/{id}", s.handleMissionDetails)
		r.Post("/missions/{id}/complete", s.handleCompleteMission)
		r.Get("/achievements", s.handleListAchievements)
		r.Post("/achievements/{id}/complete", s.handleCompleteAchievement)

		r.Post("/discoveries", s.handleMarkDiscovered)
	})
}

// --- Resources ---

func (s *Server) handleInitResource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Resource  string `json:"resource"`
		BasePrice int64  `json:"base_price"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Resource == "" {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}

	outcome, err := s.ledger.InitResource(r.Context(), ledger.Resource(req.Resource), req.BasePrice)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	switch outcome {
	case ledger.OutcomeAlreadyExists:
		writeError(w, http.StatusConflict, "resource already initialized")
	case ledger.OutcomeInvalidAmount:
		writeError(w, http.StatusBadRequest, "base price must be positive")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"resource": req.Resource})
	}
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	resource := ledger.Resource(chi.URLParam(r, "resource"))
	price, outcome, err := s.ledger.PriceOf(r.Context(), resource)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if outcome == ledger.OutcomeNotFound {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": resource, "price": price})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	resource := ledger.Resource(chi.URLParam(r, "resource"))
	trend, outcome, err := s.ledger.TrendOf(r.Context(), resource)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if outcome == ledger.OutcomeNotFound {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": resource, "trend": trend})
}

// --- Balances and history ---

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	player := ledger.Player(chi.URLParam(r, "player"))
	resource := ledger.Resource(chi.URLParam(r, "resource"))

	balance, err := s.ledger.BalanceOf(r.Context(), player, resource)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"player":   player,
		"resource": resource,
		"balance":  balance,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	player := ledger.Player(chi.URLParam(r, "player"))
	history, err := s.ledger.HistoryOf(r.Context(), player)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "transactions": history})
}

// --- Movements ---

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		To       string `json:"to"`
		Resource string `json:"resource"`
		Amount   int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	done, err := s.ledger.Transfer(r.Context(), caller, ledger.Player(req.To), ledger.Resource(req.Resource), req.Amount)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": done})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Seller   string `json:"seller"`
		Resource string `json:"resource"`
		Amount   int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	done, err := s.ledger.Buy(r.Context(), caller, ledger.Player(req.Seller), ledger.Resource(req.Resource), req.Amount)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": done})
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Buyer    string `json:"buyer"`
		Resource string `json:"resource"`
		Amount   int64  `json:"amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	done, err := s.ledger.Sell(r.Context(), caller, ledger.Player(req.Buyer), ledger.Resource(req.Resource), req.Amount)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": done})
}

// --- Offers ---

func (s *Server) handleCreateOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		SellResource string `json:"sell_resource"`
		SellAmount   int64  `json:"sell_amount"`
		BuyResource  string `json:"buy_resource"`
		BuyAmount    int64  `json:"buy_amount"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	id, outcome, err := s.book.CreateOffer(r.Context(), caller,
		ledger.Resource(req.SellResource), req.SellAmount,
		ledger.Resource(req.BuyResource), req.BuyAmount)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if outcome != trading.OutcomeCreated {
		s.writeTradingOutcome(w, outcome)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"offer_id": id})
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := s.book.ListActiveOffers(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (s *Server) handleOfferDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	offer, found, err := s.book.OfferDetails(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown offer")
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (s *Server) handlePlayerOffers(w http.ResponseWriter, r *http.Request) {
	player := ledger.Player(chi.URLParam(r, "player"))
	offers, err := s.book.OffersOf(r.Context(), player)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	outcome, err := s.book.AcceptOffer(r.Context(), caller, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if outcome != trading.OutcomeAccepted {
		s.writeTradingOutcome(w, outcome)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offer_id": id, "outcome": outcome.String()})
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	outcome, err := s.book.CancelOffer(r.Context(), caller, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if outcome != trading.OutcomeCancelled {
		s.writeTradingOutcome(w, outcome)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offer_id": id, "outcome": outcome.String()})
}

func (s *Server) writeTradingOutcome(w http.ResponseWriter, outcome trading.Outcome) {
	status := http.StatusBadRequest
	switch outcome {
	case trading.OutcomeNotFound:
		status = http.StatusNotFound
	case trading.OutcomeNotActive, trading.OutcomeSelfTrade, trading.OutcomeInsufficientBalance:
		status = http.StatusConflict
	case trading.OutcomeUnauthorized:
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]any{"outcome": outcome.String()})
}

// --- Missions and achievements ---

func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := s.tracker.ListMissions(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"missions": missions})
}

func (s *Server) handleMissionDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}
	mission, found, err := s.tracker.MissionDetails(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown mission")
		return
	}
	writeJSON(w, http.StatusOK, mission)
}

func (s *Server) handleCompleteMission(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	outcome, err := s.tracker.CompleteMission(r.Context(), caller, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeProgressionOutcome(w, outcome)
}

func (s *Server) handleListAchievements(w http.ResponseWriter, r *http.Request) {
	achievements, err := s.tracker.ListAchievements(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"achievements": achievements})
}

func (s *Server) handleCompleteAchievement(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	id, ok := s.idParam(w, r)
	if !ok {
		return
	}

	outcome, err := s.tracker.CompleteAchievement(r.Context(), caller, id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.writeProgressionOutcome(w, outcome)
}

func (s *Server) writeProgressionOutcome(w http.ResponseWriter, outcome progression.Outcome) {
	status := http.StatusOK
	switch outcome {
	case progression.OutcomeNotFound:
		status = http.StatusNotFound
	case progression.OutcomeRequirementsNotMet:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"outcome": outcome.String()})
}

func (s *Server) handlePlayerMissions(w http.ResponseWriter, r *http.Request) {
	player := ledger.Player(chi.URLParam(r, "player"))
	ids, err := s.tracker.MissionsOf(r.Context(), player)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "completed": ids})
}

func (s *Server) handlePlayerAchievements(w http.ResponseWriter, r *http.Request) {
	player := ledger.Player(chi.URLParam(r, "player"))
	ids, err := s.tracker.AchievementsOf(r.Context(), player)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"player": player, "completed": ids})
}

// --- Discoveries ---

func (s *Server) handleMarkDiscovered(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Star string `json:"star"`
	}
	if !s.decode(w, r, &req) {
		return
	}
	if req.Star == "" {
		writeError(w, http.StatusBadRequest, "star is required")
		return
	}

	if err := s.discovery.MarkDiscovered(r.Context(), caller, req.Star); err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"player": caller, "star": req.Star})
}

// --- Helpers ---

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (ledger.Player, bool) {
	player := r.Header.Get("X-Player")
	if player == "" {
		writeError(w, http.StatusUnauthorized, "X-Player header is required")
		return "", false
	}
	return ledger.Player(player), true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *Server) idParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
