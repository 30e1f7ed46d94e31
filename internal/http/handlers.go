package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/auctionfold/fund-reservations/internal/bidding"
	"github.com/auctionfold/fund-reservations/internal/config"
	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/idempotency"
	"github.com/auctionfold/fund-reservations/internal/reservation"
	"github.com/auctionfold/fund-reservations/internal/settlement"
)

const roleAuctionManager = "auction-manager"

type Handlers struct {
	cfg         *config.Config
	manager     *reservation.Manager
	validator   *bidding.Validator
	coordinator *settlement.Coordinator
	wallets     reservation.WalletStore
	idemp       *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, manager *reservation.Manager, validator *bidding.Validator, coordinator *settlement.Coordinator, wallets reservation.WalletStore, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:         cfg,
		manager:     manager,
		validator:   validator,
		coordinator: coordinator,
		wallets:     wallets,
		idemp:       idemp,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Code: code, Message: msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses with a stable
// machine-readable code.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
	case errors.Is(err, domain.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, "WalletNotFound", err.Error())
	case errors.Is(err, domain.ErrReservationNotFound):
		writeError(w, http.StatusNotFound, "ReservationNotFound", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "InsufficientFunds", err.Error())
	case errors.Is(err, domain.ErrDuplicateReservation):
		writeError(w, http.StatusConflict, "DuplicateReservation", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, domain.ErrSerializationFailure):
		writeError(w, http.StatusConflict, "Conflict", "conflict, try again")
	default:
		writeError(w, http.StatusInternalServerError, "StoreUnavailable", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

type reservationView struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	AuctionID       uuid.UUID  `json:"auction_id"`
	WalletID        uuid.UUID  `json:"wallet_id"`
	ReservedAmount  float64    `json:"reserved_amount"`
	MinimumAmount   float64    `json:"minimum_amount"`
	SecurityDeposit float64    `json:"security_deposit"`
	MaxAllowedBid   float64    `json:"max_allowed_bid"`
	Currency        string     `json:"currency"`
	Status          string     `json:"status"`
	CreatedAt       string     `json:"created_at"`
	ExpiresAt       string     `json:"expires_at"`
	FinalBidAmount  *float64   `json:"final_bid_amount,omitempty"`
	TransactionID   *uuid.UUID `json:"transaction_id,omitempty"`
}

func viewOf(res *domain.Reservation) reservationView {
	return reservationView{
		ID:              res.ID,
		UserID:          res.UserID,
		AuctionID:       res.AuctionID,
		WalletID:        res.WalletID,
		ReservedAmount:  res.ReservedAmount,
		MinimumAmount:   res.Meta.MinimumAmount,
		SecurityDeposit: res.Meta.SecurityDeposit,
		MaxAllowedBid:   res.MaxAllowedBid(),
		Currency:        res.Currency,
		Status:          string(res.Status),
		CreatedAt:       res.CreatedAt.Format(time.RFC3339),
		ExpiresAt:       res.ExpiresAt.Format(time.RFC3339),
		FinalBidAmount:  res.Meta.FinalBidAmount,
		TransactionID:   res.Meta.TransactionID,
	}
}

func (h *Handlers) CreateReservation(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return
	}

	var req struct {
		AuctionID     uuid.UUID `json:"auction_id"`
		MinimumAmount float64   `json:"minimum_amount"`
		DurationHours int       `json:"duration_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	res, err := h.manager.Reserve(r.Context(), UserID(r.Context()), req.AuctionID,
		req.MinimumAmount, time.Duration(req.DurationHours)*time.Hour)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, viewOf(res))
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) SubmitBid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuctionID uuid.UUID `json:"auction_id"`
		BidAmount float64   `json:"bid_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	decision, err := h.validator.SubmitBid(r.Context(), UserID(r.Context()), req.AuctionID, req.BidAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accepted":        decision.Accepted,
		"reason":          decision.Reason,
		"message":         decision.Message,
		"max_allowed_bid": decision.MaxAllowedBid,
	})
}

func (h *Handlers) SettleAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "invalid auction id")
		return
	}

	var req struct {
		WinnerID       uuid.UUID `json:"winner_id"`
		FinalBidAmount float64   `json:"final_bid_amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", err.Error())
		return
	}

	var winner *uuid.UUID
	if req.WinnerID != uuid.Nil {
		winner = &req.WinnerID
	}
	result, released, err := h.coordinator.CloseAuction(r.Context(), auctionID, winner, req.FinalBidAmount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]interface{}{"released_count": released}
	if result != nil {
		resp["reservation_id"] = result.ReservationID
		resp["transaction_id"] = result.TransactionID
		resp["amount_debited"] = result.AmountDebited
		resp["amount_released"] = result.AmountReleased
		resp["replayed"] = result.Replayed
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "invalid reservation id")
		return
	}

	res, err := h.manager.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Self-service cancel for the owner, otherwise auction-manager only.
	if res.UserID != UserID(r.Context()) && Role(r.Context()) != roleAuctionManager {
		writeError(w, http.StatusForbidden, "Forbidden", "not your reservation")
		return
	}

	res, err = h.manager.Release(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(res))
}

func (h *Handlers) ListReservations(w http.ResponseWriter, r *http.Request) {
	var f reservation.ListFilter
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidInput", "invalid user_id")
			return
		}
		f.UserID = &id
	}
	if v := r.URL.Query().Get("auction_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidInput", "invalid auction_id")
			return
		}
		f.AuctionID = &id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.ReservationStatus(v)
		f.Status = &status
	}

	items, stats, err := h.manager.List(r.Context(), f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	views := make([]reservationView, len(items))
	for i := range items {
		views[i] = viewOf(&items[i])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservations": views,
		"stats":        stats,
	})
}

func (h *Handlers) CleanupExpired(w http.ResponseWriter, r *http.Request) {
	cleaned, err := h.manager.CleanupExpired(r.Context(), time.Now().UTC(), h.cfg.SweepBatch)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleaned": cleaned})
}

func (h *Handlers) GetWalletBalance(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidInput", "invalid wallet id")
		return
	}

	wallet, err := h.wallets.GetBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if wallet.UserID != UserID(r.Context()) && Role(r.Context()) != roleAuctionManager {
		writeError(w, http.StatusForbidden, "Forbidden", "not your wallet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"wallet_id": wallet.ID,
		"available": wallet.Available,
		"frozen":    wallet.Frozen,
		"currency":  wallet.Currency,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
