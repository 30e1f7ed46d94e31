// Package memory holds in-memory Ledger and WalletStore implementations
// with the same conditional semantics as the crdb adapter: unique ACTIVE
// reservation per (user, auction), status-guarded transitions, and freezes
// that can be claimed exactly once. Used by unit tests and local runs; a
// single mutex per store stands in for the database's row locks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/auctionfold/fund-reservations/internal/domain"
	"github.com/auctionfold/fund-reservations/internal/reservation"
)

type Ledger struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*domain.Reservation

	// CreateErr, when set, fails the next Create calls; tests use it to
	// exercise the freeze compensation path.
	CreateErr error
}

func NewLedger() *Ledger {
	return &Ledger{rows: map[uuid.UUID]*domain.Reservation{}}
}

// OverrideExpiry rewrites a reservation's deadline so tests can age it
// without sleeping.
func (l *Ledger) OverrideExpiry(id uuid.UUID, expiresAt time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if row, ok := l.rows[id]; ok {
		row.ExpiresAt = expiresAt
	}
}

func (l *Ledger) Create(ctx context.Context, res *domain.Reservation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.CreateErr != nil {
		return l.CreateErr
	}
	for _, row := range l.rows {
		if row.UserID == res.UserID && row.AuctionID == res.AuctionID && row.Status == domain.ReservationActive {
			return domain.ErrDuplicateReservation
		}
	}
	cp := *res
	l.rows[res.ID] = &cp
	return nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *row
	return &cp, nil
}

func (l *Ledger) Active(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range l.rows {
		if row.UserID == userID && row.AuctionID == auctionID && row.Status == domain.ReservationActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, domain.ErrReservationNotFound
}

func (l *Ledger) Latest(ctx context.Context, userID, auctionID uuid.UUID) (*domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var latest *domain.Reservation
	for _, row := range l.rows {
		if row.UserID != userID || row.AuctionID != auctionID {
			continue
		}
		if latest == nil || row.CreatedAt.After(latest.CreatedAt) {
			latest = row
		}
	}
	if latest == nil {
		return nil, domain.ErrReservationNotFound
	}
	cp := *latest
	return &cp, nil
}

func (l *Ledger) List(ctx context.Context, f reservation.ListFilter) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Reservation
	for _, row := range l.rows {
		if f.UserID != nil && row.UserID != *f.UserID {
			continue
		}
		if f.AuctionID != nil && row.AuctionID != *f.AuctionID {
			continue
		}
		if f.Status != nil && row.Status != *f.Status {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

func (l *Ledger) ActiveByAuction(ctx context.Context, auctionID uuid.UUID) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Reservation
	for _, row := range l.rows {
		if row.AuctionID == auctionID && row.Status == domain.ReservationActive {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (l *Ledger) Expired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Reservation
	for _, row := range l.rows {
		if row.Status == domain.ReservationActive && !row.ExpiresAt.After(now) {
			out = append(out, *row)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (l *Ledger) Terminate(ctx context.Context, id uuid.UUID, to domain.ReservationStatus, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok || row.Status != domain.ReservationActive {
		return false, nil
	}
	row.Status = to
	row.ReleasedAt = &at
	return true, nil
}

func (l *Ledger) Settle(ctx context.Context, id uuid.UUID, finalBid float64, txID uuid.UUID, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	row, ok := l.rows[id]
	if !ok || row.Status != domain.ReservationActive {
		return false, nil
	}
	row.Status = domain.ReservationUsed
	row.UsedAt = &at
	row.Meta.FinalBidAmount = &finalBid
	row.Meta.TransactionID = &txID
	return true, nil
}

type freeze struct {
	walletID  uuid.UUID
	remaining float64
	status    domain.FreezeStatus
}

type WalletStore struct {
	mu      sync.Mutex
	wallets map[uuid.UUID]*domain.Wallet
	byUser  map[uuid.UUID]uuid.UUID
	freezes map[uuid.UUID]*freeze
	debits  int

	// ReleaseErr, when set, fails ReleaseFreeze calls; tests use it to
	// exercise the release retry path.
	ReleaseErr error
}

func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets: map[uuid.UUID]*domain.Wallet{},
		byUser:  map[uuid.UUID]uuid.UUID{},
		freezes: map[uuid.UUID]*freeze{},
	}
}

// AddWallet seeds a USD wallet and returns its id.
func (w *WalletStore) AddWallet(userID uuid.UUID, available float64) uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.New()
	w.wallets[id] = &domain.Wallet{ID: id, UserID: userID, Currency: "USD", Available: available}
	w.byUser[userID] = id
	return id
}

// Debits reports how many debit operations actually went through; the
// exactly-once settlement tests assert on it.
func (w *WalletStore) Debits() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.debits
}

func (w *WalletStore) GetBalance(ctx context.Context, walletID uuid.UUID) (*domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wallet, ok := w.wallets[walletID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *wallet
	return &cp, nil
}

func (w *WalletStore) WalletByUser(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.byUser[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := *w.wallets[id]
	return &cp, nil
}

func (w *WalletStore) Freeze(ctx context.Context, walletID uuid.UUID, amount float64, reference string, expiresAt time.Time) (uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wallet, ok := w.wallets[walletID]
	if !ok {
		return uuid.Nil, domain.ErrWalletNotFound
	}
	if wallet.Available < amount {
		return uuid.Nil, domain.ErrInsufficientFunds
	}
	wallet.Available -= amount
	wallet.Frozen += amount
	id := uuid.New()
	w.freezes[id] = &freeze{walletID: walletID, remaining: amount, status: domain.FreezeActive}
	return id, nil
}

func (w *WalletStore) ReleaseFreeze(ctx context.Context, freezeID uuid.UUID) (float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ReleaseErr != nil {
		return 0, w.ReleaseErr
	}
	fr, ok := w.freezes[freezeID]
	if !ok {
		return 0, domain.ErrConflict
	}
	if fr.status != domain.FreezeActive {
		return 0, nil
	}
	released := fr.remaining
	fr.remaining = 0
	fr.status = domain.FreezeReleased
	wallet := w.wallets[fr.walletID]
	wallet.Available += released
	wallet.Frozen -= released
	return released, nil
}

func (w *WalletStore) DebitFrozen(ctx context.Context, freezeID uuid.UUID, amount float64, description string) (uuid.UUID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fr, ok := w.freezes[freezeID]
	if !ok || fr.status != domain.FreezeActive {
		return uuid.Nil, domain.ErrConflict
	}
	if fr.remaining < amount {
		return uuid.Nil, domain.ErrConflict
	}
	fr.remaining -= amount
	if fr.remaining == 0 {
		fr.status = domain.FreezeConsumed
	}
	wallet := w.wallets[fr.walletID]
	wallet.Frozen -= amount
	w.debits++
	return uuid.New(), nil
}

// SettlementStore settles a winning reservation against both stores under
// their locks, mirroring the crdb adapter's single-transaction settlement:
// either the debit, the remainder release, and the USED transition all
// happen, or none do.
type SettlementStore struct {
	ledger  *Ledger
	wallets *WalletStore

	// ExecErr, when set, fails ExecuteSettlement before any state is
	// touched; tests use it to exercise the settlement retry path.
	ExecErr error
}

func NewSettlementStore(ledger *Ledger, wallets *WalletStore) *SettlementStore {
	return &SettlementStore{ledger: ledger, wallets: wallets}
}

func (s *SettlementStore) ExecuteSettlement(ctx context.Context, res *domain.Reservation, debit, finalBid float64, description string, at time.Time) (uuid.UUID, float64, error) {
	if s.ExecErr != nil {
		return uuid.Nil, 0, s.ExecErr
	}

	s.wallets.mu.Lock()
	defer s.wallets.mu.Unlock()
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()

	fr, ok := s.wallets.freezes[res.Meta.FrozenFundsID]
	if !ok || fr.status != domain.FreezeActive || fr.remaining < debit {
		return uuid.Nil, 0, domain.ErrConflict
	}
	row, ok := s.ledger.rows[res.ID]
	if !ok || row.Status != domain.ReservationActive {
		return uuid.Nil, 0, domain.ErrConflict
	}

	txID := uuid.New()
	remainder := fr.remaining - debit
	wallet := s.wallets.wallets[fr.walletID]
	wallet.Frozen -= fr.remaining
	wallet.Available += remainder
	fr.remaining = 0
	fr.status = domain.FreezeConsumed
	s.wallets.debits++

	row.Status = domain.ReservationUsed
	row.UsedAt = &at
	row.Meta.FinalBidAmount = &finalBid
	row.Meta.TransactionID = &txID
	return txID, remainder, nil
}
