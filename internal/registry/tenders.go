package registry

import (
	"context"
	"fmt"
)

const (
	minTenderTitleLen       = 3
	minTenderDescriptionLen = 10
)

// IssueTender opens a procurement opportunity for competitive bidding.
// The caller must be an active entity.
func (r *Registry) IssueTender(ctx context.Context, caller, title, description string, amount, deadline, minBid, maxBid int64) (Tender, error) {
	const op = "registry.IssueTender"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: caller: %w", op, err)
	}
	if len(title) < minTenderTitleLen {
		return Tender{}, fmt.Errorf("%s: title must be at least %d characters: %w", op, minTenderTitleLen, ErrInvalidInput)
	}
	if len(description) < minTenderDescriptionLen {
		return Tender{}, fmt.Errorf("%s: description must be at least %d characters: %w", op, minTenderDescriptionLen, ErrInvalidInput)
	}
	if err := validAmount(amount); err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}
	if minBid <= 0 || maxBid < minBid {
		return Tender{}, fmt.Errorf("%s: bid range [%d, %d] is invalid: %w", op, minBid, maxBid, ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.activeEntity(caller); err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}
	if deadline <= r.now().Unix() {
		return Tender{}, fmt.Errorf("%s: deadline must be in the future: %w", op, ErrInvalidInput)
	}

	t := Tender{
		ID:           int64(len(r.tenders)) + 1,
		Title:        title,
		Description:  description,
		Amount:       amount,
		Deadline:     deadline,
		Issuer:       caller,
		IsActive:     true,
		MinBidAmount: minBid,
		MaxBidAmount: maxBid,
	}
	if err := r.persist(func(s Store) error { return s.SaveTender(ctx, t) }); err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}

	r.tenders = append(r.tenders, &t)
	r.log.Info("tender issued", "id", t.ID, "issuer", caller, "amount", amount)
	return t, nil
}

// PlaceBid escrows a deposit from the bidder's balance against an open
// tender. One live bid per bidder per tender; the issuer may not bid.
func (r *Registry) PlaceBid(ctx context.Context, caller string, tenderID, amount int64) (Bid, error) {
	const op = "registry.PlaceBid"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return Bid{}, fmt.Errorf("%s: caller: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bidder, err := r.activeEntity(caller)
	if err != nil {
		return Bid{}, fmt.Errorf("%s: %w", op, err)
	}
	t, err := r.tender(tenderID)
	if err != nil {
		return Bid{}, fmt.Errorf("%s: %w", op, err)
	}
	if !t.IsActive {
		return Bid{}, fmt.Errorf("%s: tender %d is closed: %w", op, t.ID, ErrInvalidState)
	}
	if r.now().Unix() >= t.Deadline {
		return Bid{}, fmt.Errorf("%s: tender %d deadline has passed: %w", op, t.ID, ErrInvalidState)
	}
	if caller == t.Issuer {
		return Bid{}, fmt.Errorf("%s: issuer may not bid on its own tender: %w", op, ErrNotAuthorized)
	}
	if amount < t.MinBidAmount || amount > t.MaxBidAmount {
		return Bid{}, fmt.Errorf("%s: amount %d outside bid range [%d, %d]: %w", op, amount, t.MinBidAmount, t.MaxBidAmount, ErrInvalidInput)
	}
	if r.liveBid(t.ID, caller) != nil {
		return Bid{}, fmt.Errorf("%s: bidder %s already has a live bid on tender %d: %w", op, caller, t.ID, ErrAlreadyDone)
	}
	if amount > bidder.Balance {
		return Bid{}, fmt.Errorf("%s: amount %d exceeds balance %d: %w", op, amount, bidder.Balance, ErrInsufficientFunds)
	}

	b := Bid{
		ID:        r.nextBidID + 1,
		TenderID:  t.ID,
		Bidder:    caller,
		Amount:    amount,
		Timestamp: r.now().Unix(),
	}
	nextTender := *t
	nextTender.BidCount++
	nextBidder := *bidder
	nextBidder.Balance -= amount
	escrow := r.escrowHeld + amount
	if err := r.persist(func(s Store) error { return s.SaveBid(ctx, b, nextTender, nextBidder, escrow) }); err != nil {
		return Bid{}, fmt.Errorf("%s: %w", op, err)
	}

	*t = nextTender
	*bidder = nextBidder
	r.nextBidID = b.ID
	r.escrowHeld = escrow
	r.bidsByTender[t.ID] = append(r.bidsByTender[t.ID], &b)
	r.log.Info("bid placed", "tender", t.ID, "bidder", caller, "amount", amount, "escrow", escrow)
	return b, nil
}

// WithdrawBid returns the caller's escrowed deposit on an open tender and
// marks the bid withdrawn.
func (r *Registry) WithdrawBid(ctx context.Context, caller string, tenderID int64) error {
	const op = "registry.WithdrawBid"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("%s: caller: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.tender(tenderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !t.IsActive {
		return fmt.Errorf("%s: tender %d is closed, escrow was already released: %w", op, t.ID, ErrInvalidState)
	}

	var bid *Bid
	hadBid := false
	for _, b := range r.bidsByTender[t.ID] {
		if b.Bidder != caller {
			continue
		}
		hadBid = true
		if !b.IsWithdrawn {
			bid = b
			break
		}
	}
	if bid == nil {
		if hadBid {
			return fmt.Errorf("%s: bid on tender %d is already withdrawn: %w", op, t.ID, ErrAlreadyDone)
		}
		return fmt.Errorf("%s: no bid by %s on tender %d: %w", op, caller, t.ID, ErrNotFound)
	}

	bidder, ok := r.entity(caller)
	if !ok {
		return fmt.Errorf("%s: entity %s: %w", op, caller, ErrNotFound)
	}

	nextBid := *bid
	nextBid.IsWithdrawn = true
	nextBidder := *bidder
	nextBidder.Balance += bid.Amount
	escrow := r.escrowHeld - bid.Amount
	if err := r.persist(func(s Store) error { return s.SaveBidWithdrawal(ctx, nextBid, nextBidder, escrow) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	*bid = nextBid
	*bidder = nextBidder
	r.escrowHeld = escrow
	r.log.Info("bid withdrawn", "tender", t.ID, "bidder", caller, "amount", bid.Amount, "escrow", escrow)
	return nil
}

// AwardTender closes a tender in favor of the highest live bid (earliest
// on ties). The tender amount moves from the issuer to the winner and all
// live deposits, the winner's included, are released back to their
// bidders. Issuer only.
func (r *Registry) AwardTender(ctx context.Context, caller string, tenderID int64) (Tender, error) {
	const op = "registry.AwardTender"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: caller: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.tender(tenderID)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}
	if caller != t.Issuer {
		return Tender{}, fmt.Errorf("%s: caller %s is not the issuer of tender %d: %w", op, caller, t.ID, ErrNotAuthorized)
	}
	if !t.IsActive {
		return Tender{}, fmt.Errorf("%s: tender %d is already closed: %w", op, t.ID, ErrInvalidState)
	}

	var winning *Bid
	for _, b := range r.bidsByTender[t.ID] {
		if b.IsWithdrawn {
			continue
		}
		if winning == nil || b.Amount > winning.Amount {
			winning = b
		}
	}
	if winning == nil {
		return Tender{}, fmt.Errorf("%s: tender %d has no live bids: %w", op, t.ID, ErrInvalidState)
	}

	issuer, ok := r.entity(t.Issuer)
	if !ok {
		return Tender{}, fmt.Errorf("%s: entity %s: %w", op, t.Issuer, ErrNotFound)
	}
	if t.Amount > issuer.Balance {
		return Tender{}, fmt.Errorf("%s: tender amount %d exceeds issuer balance %d: %w", op, t.Amount, issuer.Balance, ErrInsufficientFunds)
	}

	// Stage balance movements: payment issuer -> winner, then every live
	// deposit back to its bidder.
	deltas := map[string]int64{
		t.Issuer:       -t.Amount,
		winning.Bidder: t.Amount,
	}
	released := int64(0)
	for _, b := range r.bidsByTender[t.ID] {
		if b.IsWithdrawn {
			continue
		}
		deltas[b.Bidder] += b.Amount
		released += b.Amount
	}

	nextTender := *t
	nextTender.IsActive = false
	nextTender.Winner = winning.Bidder
	nextTender.WinningBid = winning.Amount
	escrow := r.escrowHeld - released

	updated := r.stageDeltas(deltas)
	if err := r.persist(func(s Store) error { return s.CloseTender(ctx, nextTender, updated, escrow) }); err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}

	*t = nextTender
	r.applyEntities(updated)
	r.escrowHeld = escrow
	r.log.Info("tender awarded", "id", t.ID, "winner", t.Winner, "winningBid", t.WinningBid, "amount", t.Amount)
	return *t, nil
}

// CancelTender closes a tender without a winner and refunds every live
// deposit. Issuer only.
func (r *Registry) CancelTender(ctx context.Context, caller string, tenderID int64) (Tender, error) {
	const op = "registry.CancelTender"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: caller: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.tender(tenderID)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}
	if caller != t.Issuer {
		return Tender{}, fmt.Errorf("%s: caller %s is not the issuer of tender %d: %w", op, caller, t.ID, ErrNotAuthorized)
	}
	if !t.IsActive {
		return Tender{}, fmt.Errorf("%s: tender %d is already closed: %w", op, t.ID, ErrInvalidState)
	}

	deltas := map[string]int64{}
	released := int64(0)
	for _, b := range r.bidsByTender[t.ID] {
		if b.IsWithdrawn {
			continue
		}
		deltas[b.Bidder] += b.Amount
		released += b.Amount
	}

	nextTender := *t
	nextTender.IsActive = false
	escrow := r.escrowHeld - released

	updated := r.stageDeltas(deltas)
	if err := r.persist(func(s Store) error { return s.CloseTender(ctx, nextTender, updated, escrow) }); err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}

	*t = nextTender
	r.applyEntities(updated)
	r.escrowHeld = escrow
	r.log.Info("tender cancelled", "id", t.ID, "refunded", released)
	return *t, nil
}

// GetTenders pages all tenders in insertion order.
func (r *Registry) GetTenders(offset, limit int) ([]Tender, error) {
	const op = "registry.GetTenders"

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.tenders, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetTenderDetails returns one tender by id.
func (r *Registry) GetTenderDetails(tenderID int64) (Tender, error) {
	const op = "registry.GetTenderDetails"

	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.tender(tenderID)
	if err != nil {
		return Tender{}, fmt.Errorf("%s: %w", op, err)
	}
	return *t, nil
}

// GetBids lists every bid on a tender, withdrawn ones included.
func (r *Registry) GetBids(tenderID int64) ([]Bid, error) {
	const op = "registry.GetBids"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.tender(tenderID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items := r.bidsByTender[tenderID]
	out := make([]Bid, 0, len(items))
	for _, b := range items {
		out = append(out, *b)
	}
	return out, nil
}

// liveBid finds a bidder's non-withdrawn bid on a tender, if any.
func (r *Registry) liveBid(tenderID int64, bidder string) *Bid {
	for _, b := range r.bidsByTender[tenderID] {
		if b.Bidder == bidder && !b.IsWithdrawn {
			return b
		}
	}
	return nil
}

// stageDeltas builds updated entity copies without touching live state, in
// entity insertion order so persistence is deterministic.
func (r *Registry) stageDeltas(deltas map[string]int64) []Entity {
	updated := make([]Entity, 0, len(deltas))
	for _, address := range r.entityOrder {
		delta, ok := deltas[address]
		if !ok {
			continue
		}
		next := *r.entities[address]
		next.Balance += delta
		updated = append(updated, next)
	}
	return updated
}

func (r *Registry) applyEntities(updated []Entity) {
	for i := range updated {
		*r.entities[updated[i].Address] = updated[i]
	}
}
