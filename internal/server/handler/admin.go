package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// AdminService is what the administrative endpoints need from the market engine.
type AdminService interface {
	Pause(ctx context.Context, caller common.Address) error
	Unpause(ctx context.Context, caller common.Address) error
	SetBiddingDuration(ctx context.Context, caller common.Address, d time.Duration) error
	ReapStaleOrders(ctx context.Context, caller common.Address, ids []uint64) ([]domain.BatchResult, error)
	SetAcceptedMedium(ctx context.Context, caller common.Address, m domain.Medium) error
	AcceptedMedia(ctx context.Context) ([]domain.Medium, error)
	Settings(ctx context.Context) (domain.Settings, error)
	Bounds() domain.Bounds
	Operator() common.Address
}

// AdminHandler serves settings and the operator-only controls.
type AdminHandler struct {
	market AdminService
	logger *slog.Logger
}

func NewAdminHandler(market AdminService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{market: market, logger: logger.With(slog.String("handler", "admin"))}
}

type settingsView struct {
	Paused          bool           `json:"paused"`
	BiddingDuration string         `json:"bidding_duration"`
	Bounds          domain.Bounds  `json:"bounds"`
	Operator        common.Address `json:"operator"`
}

// Settings returns the global settings and their bounds.
// GET /api/settings
func (h *AdminHandler) Settings(w http.ResponseWriter, r *http.Request) {
	s, err := h.market.Settings(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsView{
		Paused:          s.Paused,
		BiddingDuration: s.BiddingDuration.String(),
		Bounds:          h.market.Bounds(),
		Operator:        h.market.Operator(),
	})
}

// Media lists the payment registry.
// GET /api/media
func (h *AdminHandler) Media(w http.ResponseWriter, r *http.Request) {
	media, err := h.market.AcceptedMedia(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list media", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"media": media})
}

// Pause and Unpause toggle the global pause.
// POST /api/admin/pause, POST /api/admin/unpause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.togglePause(w, r, true)
}

func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.togglePause(w, r, false)
}

func (h *AdminHandler) togglePause(w http.ResponseWriter, r *http.Request, paused bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var err error
	if paused {
		err = h.market.Pause(r.Context(), caller)
	} else {
		err = h.market.Unpause(r.Context(), caller)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "set pause", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

// SetBiddingDuration accepts a Go duration string such as "36h".
// PUT /api/admin/bidding-duration
func (h *AdminHandler) SetBiddingDuration(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Duration string `json:"duration"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration: "+err.Error())
		return
	}
	if err := h.market.SetBiddingDuration(r.Context(), caller, d); err != nil {
		writeDomainError(w, r, h.logger, "set bidding duration", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bidding_duration": d.String()})
}

// SetMedium adds, updates or disables an accepted payment medium.
// PUT /api/admin/media
func (h *AdminHandler) SetMedium(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Address  string `json:"address"`
		Symbol   string `json:"symbol"`
		Decimals int32  `json:"decimals"`
		Enabled  bool   `json:"enabled"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	addr, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m := domain.Medium{Address: addr, Symbol: req.Symbol, Decimals: req.Decimals, Enabled: req.Enabled}
	if err := h.market.SetAcceptedMedium(r.Context(), caller, m); err != nil {
		writeDomainError(w, r, h.logger, "set medium", err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// Reap closes stale fixed-price orders.
// POST /api/admin/reap
func (h *AdminHandler) Reap(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if !decodeBody(w, r, &req) || !checkBatch(w, len(req.OrderIDs)) {
		return
	}
	results, err := h.market.ReapStaleOrders(r.Context(), caller, req.OrderIDs)
	if err != nil {
		writeDomainError(w, r, h.logger, "reap orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": batchResponse(results)})
}
