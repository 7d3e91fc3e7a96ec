package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// AccountService is what the account endpoints need from the market engine.
type AccountService interface {
	Withdraw(ctx context.Context, account, medium common.Address) (*big.Int, error)
	Balances(ctx context.Context, account common.Address) ([]domain.Balance, error)
	AcceptedMedia(ctx context.Context) ([]domain.Medium, error)
	IsAdmin(account common.Address) bool
}

// Depositor credits custodial wallets once funds have reached custody.
type Depositor interface {
	Deposit(ctx context.Context, medium, account common.Address, amount *big.Int) error
	Available(ctx context.Context, medium, account common.Address) (*big.Int, error)
}

// AccountHandler serves balances, withdrawals and custodial deposits.
type AccountHandler struct {
	market    AccountService
	depositor Depositor // nil when no medium is held in custodial wallets
	logger    *slog.Logger
}

func NewAccountHandler(market AccountService, depositor Depositor, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{market: market, depositor: depositor, logger: logger.With(slog.String("handler", "account"))}
}

type balanceView struct {
	Medium  common.Address `json:"medium"`
	Symbol  string         `json:"symbol,omitempty"`
	Amount  string         `json:"amount"`
	Display string         `json:"display"`
}

func (h *AccountHandler) media(ctx context.Context) map[common.Address]domain.Medium {
	out := map[common.Address]domain.Medium{}
	if list, err := h.market.AcceptedMedia(ctx); err == nil {
		for _, m := range list {
			out[m.Address] = m
		}
	}
	return out
}

// Balances lists what the marketplace owes the caller.
// GET /api/account/balances
func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	owed, err := h.market.Balances(r.Context(), caller)
	if err != nil {
		writeDomainError(w, r, h.logger, "list balances", err)
		return
	}
	media := h.media(r.Context())
	views := make([]balanceView, 0, len(owed))
	for _, b := range owed {
		m := media[b.Medium]
		views = append(views, balanceView{
			Medium:  b.Medium,
			Symbol:  m.Symbol,
			Amount:  b.Amount.String(),
			Display: m.Display(b.Amount),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": caller, "balances": views})
}

// Withdraw pays out the caller's balance in one medium.
// POST /api/account/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req struct {
		Medium string `json:"medium"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	medium, err := parseAddress("medium", req.Medium)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	paid, err := h.market.Withdraw(r.Context(), caller, medium)
	if err != nil {
		writeDomainError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"medium": medium, "amount": paid.String()})
}

// Deposit credits an account's custodial wallet. Only an admin may call it,
// after confirming the funds have arrived in custody.
// POST /api/admin/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	if h.depositor == nil {
		writeError(w, http.StatusNotFound, "deposits are not available")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	if !h.market.IsAdmin(caller) {
		writeDomainError(w, r, h.logger, "deposit", domain.ErrUnauthorized)
		return
	}
	var req struct {
		Account   string `json:"account"`
		Medium    string `json:"medium"`
		Amount    string `json:"amount"`
		Reference string `json:"reference"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if account == (common.Address{}) {
		writeError(w, http.StatusBadRequest, errMissing("account").Error())
		return
	}
	medium, err := parseAddress("medium", req.Medium)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil || amount == nil || amount.Sign() == 0 {
		writeError(w, http.StatusBadRequest, "amount: must be a positive integer")
		return
	}
	if _, ok := h.media(r.Context())[medium]; !ok {
		writeDomainError(w, r, h.logger, "deposit", domain.ErrMediumNotAccepted)
		return
	}

	if err := h.depositor.Deposit(r.Context(), medium, account, amount); err != nil {
		writeDomainError(w, r, h.logger, "deposit", err)
		return
	}
	h.logger.InfoContext(r.Context(), "deposit credited",
		slog.String("admin", caller.Hex()),
		slog.String("account", account.Hex()),
		slog.String("medium", medium.Hex()),
		slog.String("amount", amount.String()),
		slog.String("reference", req.Reference),
	)
	bal, err := h.depositor.Available(r.Context(), medium, account)
	if err != nil {
		writeDomainError(w, r, h.logger, "wallet balance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": account, "medium": medium, "wallet": bal.String()})
}
