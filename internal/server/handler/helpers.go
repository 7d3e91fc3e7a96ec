package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
	"github.com/alanyoungcy/escrowmarket/internal/server/middleware"
)

const maxBatch = 100

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusTable maps domain errors to HTTP statuses; first match wins.
var statusTable = []struct {
	err    error
	status int
}{
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{domain.ErrSystemPaused, http.StatusServiceUnavailable},
	{domain.ErrRateLimited, http.StatusTooManyRequests},
	{domain.ErrInvalidOrder, http.StatusBadRequest},
	{domain.ErrOutOfBounds, http.StatusBadRequest},
	{domain.ErrMediumNotAccepted, http.StatusBadRequest},
	{domain.ErrAuctionClosed, http.StatusGone},
	{domain.ErrAuctionExpired, http.StatusGone},
	{domain.ErrAlreadyClosed, http.StatusConflict},
	{domain.ErrOrderNotOpen, http.StatusConflict},
	{domain.ErrAuctionActive, http.StatusConflict},
	{domain.ErrNotStale, http.StatusConflict},
	{domain.ErrLockHeld, http.StatusConflict},
	{domain.ErrAlreadyExists, http.StatusConflict},
	{domain.ErrNotAuction, http.StatusUnprocessableEntity},
	{domain.ErrNotFixedPrice, http.StatusUnprocessableEntity},
	{domain.ErrSelfBid, http.StatusUnprocessableEntity},
	{domain.ErrSelfPurchase, http.StatusUnprocessableEntity},
	{domain.ErrBidTooLow, http.StatusUnprocessableEntity},
	{domain.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{domain.ErrAssetTransferUnauthorized, http.StatusUnprocessableEntity},
	{domain.ErrTransferFailed, http.StatusBadGateway},
}

func statusOf(err error) int {
	for _, m := range statusTable {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// writeDomainError reports err with its mapped status. Unmapped errors are
// logged and hidden behind a generic message.
func writeDomainError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// requireCaller returns the authenticated caller or writes 401.
func requireCaller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := middleware.Caller(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "signed request required")
		return common.Address{}, false
	}
	return caller, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()
	opts := domain.ListOpts{Limit: 50}
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		opts.Limit = min(n, 500)
	}
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n >= 0 {
		opts.Offset = n
	}
	return opts
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// parseAmount reads a base-unit integer in the uint256 range. Empty means nil.
func parseAmount(field, s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%s: invalid amount %q", field, s)
	}
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("%s: amount exceeds 2^256-1", field)
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

type batchItem struct {
	OrderID uint64 `json:"order_id,omitempty"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Status  int    `json:"status,omitempty"`
}

func batchResponse(results []domain.BatchResult) []batchItem {
	out := make([]batchItem, len(results))
	for i, res := range results {
		out[i] = batchItem{OrderID: res.OrderID, OK: res.OK()}
		if res.Err != nil {
			out[i].Error = res.Err.Error()
			out[i].Status = statusOf(res.Err)
		}
	}
	return out
}

func checkBatch(w http.ResponseWriter, n int) bool {
	if n == 0 || n > maxBatch {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch must hold 1..%d items", maxBatch))
		return false
	}
	return true
}
