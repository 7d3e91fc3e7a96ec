package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// OrderService is what the order endpoints need from the market engine.
type OrderService interface {
	CreateFixedPrice(ctx context.Context, p domain.OrderParams) (domain.Order, error)
	CreateAuction(ctx context.Context, p domain.OrderParams) (domain.Order, error)
	CreateFixedPriceBatch(ctx context.Context, ps []domain.OrderParams) []domain.BatchResult
	CreateAuctionBatch(ctx context.Context, ps []domain.OrderParams) []domain.BatchResult
	PlaceBid(ctx context.Context, orderID uint64, bidder common.Address, amount, supplied *big.Int) (domain.Bid, error)
	BuyOrder(ctx context.Context, orderID uint64, buyer common.Address, supplied *big.Int) (domain.Order, error)
	CancelOrder(ctx context.Context, caller common.Address, orderID uint64) (domain.Order, error)
	CancelOrders(ctx context.Context, caller common.Address, ids []uint64) []domain.BatchResult
	FinalizeAuction(ctx context.Context, orderID uint64) (domain.Order, error)
	FinalizeAuctions(ctx context.Context, ids []uint64) []domain.BatchResult
	GetOrder(ctx context.Context, id uint64) (domain.Order, error)
	ListOpenOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	ListAllOrders(ctx context.Context, opts domain.ListOpts) ([]domain.Order, error)
	CountOpenOrders(ctx context.Context) (int64, error)
	Bids(ctx context.Context, orderID uint64) ([]domain.Bid, error)
	HighestBid(ctx context.Context, orderID uint64) (domain.Bid, error)
	AcceptedMedia(ctx context.Context) ([]domain.Medium, error)
}

// OrderHandler serves listing, bidding, purchase and finalization.
type OrderHandler struct {
	market OrderService
	logger *slog.Logger
}

func NewOrderHandler(market OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{market: market, logger: logger.With(slog.String("handler", "orders"))}
}

// listingRequest is a new order. Amounts are base-unit decimal strings.
type listingRequest struct {
	AssetContract string           `json:"asset_contract"`
	AssetID       string           `json:"asset_id"`
	AssetAmount   string           `json:"asset_amount,omitempty"`
	AssetKind     domain.AssetKind `json:"asset_kind"`
	PaymentMedium string           `json:"payment_medium,omitempty"`
	BasePrice     string           `json:"base_price"`
	BidIncrement  string           `json:"bid_increment,omitempty"`
}

func (req listingRequest) params(seller common.Address) (domain.OrderParams, error) {
	p := domain.OrderParams{Seller: seller, AssetKind: req.AssetKind}
	var err error
	if p.AssetContract, err = parseAddress("asset_contract", req.AssetContract); err != nil {
		return p, err
	}
	if p.PaymentMedium, err = parseAddress("payment_medium", req.PaymentMedium); err != nil {
		return p, err
	}
	if p.AssetID, err = parseAmount("asset_id", req.AssetID); err != nil {
		return p, err
	}
	if p.AssetAmount, err = parseAmount("asset_amount", req.AssetAmount); err != nil {
		return p, err
	}
	if p.BasePrice, err = parseAmount("base_price", req.BasePrice); err != nil {
		return p, err
	}
	if p.BidIncrement, err = parseAmount("bid_increment", req.BidIncrement); err != nil {
		return p, err
	}
	return p, nil
}

// orderView adds display amounts to an order.
type orderView struct {
	domain.Order
	Medium       string `json:"medium_symbol,omitempty"`
	BasePriceFmt string `json:"base_price_display"`
	SettledFmt   string `json:"settled_price_display,omitempty"`
	Open         bool   `json:"open"`
}

func (h *OrderHandler) views(ctx context.Context, orders []domain.Order) []orderView {
	media := map[common.Address]domain.Medium{}
	if list, err := h.market.AcceptedMedia(ctx); err == nil {
		for _, m := range list {
			media[m.Address] = m
		}
	}
	out := make([]orderView, len(orders))
	for i, o := range orders {
		m, ok := media[o.PaymentMedium]
		if !ok {
			m = domain.Medium{Address: o.PaymentMedium}
		}
		out[i] = orderView{Order: o, Medium: m.Symbol, BasePriceFmt: m.Display(o.BasePrice), Open: o.IsOpen()}
		if o.SettledPrice != nil {
			out[i].SettledFmt = m.Display(o.SettledPrice)
		}
	}
	return out
}

// Create lists one order. The kind comes from the route.
// POST /api/orders/fixed-price, POST /api/orders/auction
func (h *OrderHandler) Create(kind domain.OrderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req listingRequest
		if !decodeBody(w, r, &req) {
			return
		}
		p, err := req.params(seller)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var o domain.Order
		if kind == domain.OrderKindAuction {
			o, err = h.market.CreateAuction(r.Context(), p)
		} else {
			o, err = h.market.CreateFixedPrice(r.Context(), p)
		}
		if err != nil {
			writeDomainError(w, r, h.logger, "create order", err)
			return
		}
		writeJSON(w, http.StatusCreated, h.views(r.Context(), []domain.Order{o})[0])
	}
}

// CreateBatch lists several orders; each element reports its own outcome.
// POST /api/orders/fixed-price/batch, POST /api/orders/auction/batch
func (h *OrderHandler) CreateBatch(kind domain.OrderKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		var req struct {
			Orders []listingRequest `json:"orders"`
		}
		if !decodeBody(w, r, &req) || !checkBatch(w, len(req.Orders)) {
			return
		}
		ps := make([]domain.OrderParams, len(req.Orders))
		for i, lr := range req.Orders {
			p, err := lr.params(seller)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			ps[i] = p
		}

		var results []domain.BatchResult
		if kind == domain.OrderKindAuction {
			results = h.market.CreateAuctionBatch(r.Context(), ps)
		} else {
			results = h.market.CreateFixedPriceBatch(r.Context(), ps)
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": batchResponse(results)})
	}
}

// List returns open orders, or every order with ?all=true.
// GET /api/orders
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	var (
		orders []domain.Order
		err    error
	)
	if r.URL.Query().Get("all") == "true" {
		orders, err = h.market.ListAllOrders(r.Context(), opts)
	} else {
		orders, err = h.market.ListOpenOrders(r.Context(), opts)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "list orders", err)
		return
	}
	open, err := h.market.CountOpenOrders(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "count orders", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": h.views(r.Context(), orders), "open_count": open})
}

// Get returns one order.
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.market.GetOrder(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(r.Context(), []domain.Order{o})[0])
}

// Bids returns the bid history and the highest bid.
// GET /api/orders/{id}/bids
func (h *OrderHandler) Bids(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	bids, err := h.market.Bids(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "list bids", err)
		return
	}
	resp := map[string]any{"bids": bids}
	if top, err := h.market.HighestBid(r.Context(), id); err == nil {
		resp["highest"] = top
	}
	writeJSON(w, http.StatusOK, resp)
}

type fundedRequest struct {
	Amount   string `json:"amount,omitempty"`
	Supplied string `json:"supplied,omitempty"`
}

// PlaceBid bids on an auction.
// POST /api/orders/{id}/bids
func (h *OrderHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	bidder, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req fundedRequest
	if !decodeBody(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err == nil && amount == nil {
		err = errMissing("amount")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	supplied, err := parseAmount("supplied", req.Supplied)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	bid, err := h.market.PlaceBid(r.Context(), id, bidder, amount, supplied)
	if err != nil {
		writeDomainError(w, r, h.logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, bid)
}

// Buy purchases a fixed-price order.
// POST /api/orders/{id}/buy
func (h *OrderHandler) Buy(w http.ResponseWriter, r *http.Request) {
	buyer, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req fundedRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	supplied, err := parseAmount("supplied", req.Supplied)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.market.BuyOrder(r.Context(), id, buyer, supplied)
	if err != nil {
		writeDomainError(w, r, h.logger, "buy order", err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(r.Context(), []domain.Order{o})[0])
}

// Cancel withdraws the caller's fixed-price order.
// DELETE /api/orders/{id}
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.market.CancelOrder(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(r.Context(), []domain.Order{o})[0])
}

type idsRequest struct {
	OrderIDs []uint64 `json:"order_ids"`
}

// CancelBatch cancels several of the caller's orders.
// POST /api/orders/cancel
func (h *OrderHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req idsRequest
	if !decodeBody(w, r, &req) || !checkBatch(w, len(req.OrderIDs)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": batchResponse(h.market.CancelOrders(r.Context(), caller, req.OrderIDs))})
}

// Finalize settles an expired auction. Anyone may call it.
// POST /api/orders/{id}/finalize
func (h *OrderHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	o, err := h.market.FinalizeAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, "finalize auction", err)
		return
	}
	writeJSON(w, http.StatusOK, h.views(r.Context(), []domain.Order{o})[0])
}

// FinalizeBatch settles several expired auctions.
// POST /api/orders/finalize
func (h *OrderHandler) FinalizeBatch(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if !decodeBody(w, r, &req) || !checkBatch(w, len(req.OrderIDs)) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": batchResponse(h.market.FinalizeAuctions(r.Context(), req.OrderIDs))})
}

type missingField string

func (f missingField) Error() string { return string(f) + ": required" }

func errMissing(field string) error { return missingField(field) }
