package registry

import (
	"context"
	"fmt"
)

// IssueFunds credits an active entity's balance with value paid in by the
// central authority. Central authority only.
func (r *Registry) IssueFunds(ctx context.Context, caller, entity string, amount int64) (IssuedFund, error) {
	const op = "registry.IssueFunds"

	entity, err := r.centralTarget(caller, entity)
	if err != nil {
		return IssuedFund{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := validAmount(amount); err != nil {
		return IssuedFund{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.activeEntity(entity)
	if err != nil {
		return IssuedFund{}, fmt.Errorf("%s: %w", op, err)
	}

	f := IssuedFund{
		ID:        int64(len(r.issuedFunds)) + 1,
		Entity:    entity,
		Amount:    amount,
		Timestamp: r.now().Unix(),
	}
	next := *e
	next.Balance += amount
	if err := r.persist(func(s Store) error { return s.SaveIssuedFund(ctx, f, next) }); err != nil {
		return IssuedFund{}, fmt.Errorf("%s: %w", op, err)
	}

	*e = next
	r.issuedFunds = append(r.issuedFunds, &f)
	r.log.Info("funds issued", "entity", entity, "amount", amount, "balance", e.Balance)
	return f, nil
}

// GetIssuedFunds pages the issuance ledger in insertion order.
func (r *Registry) GetIssuedFunds(offset, limit int) ([]IssuedFund, error) {
	const op = "registry.GetIssuedFunds"

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.issuedFunds, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// RecordSpending debits the caller's balance and appends an immutable
// spending record. The full amount starts un-itemized: the record's
// needToSpend equals amount until micro-transactions consume it.
func (r *Registry) RecordSpending(ctx context.Context, caller, purpose string, amount int64, documentHash string) (SpendingRecord, error) {
	const op = "registry.RecordSpending"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return SpendingRecord{}, fmt.Errorf("%s: caller: %w", op, err)
	}
	if purpose == "" {
		return SpendingRecord{}, fmt.Errorf("%s: purpose is required: %w", op, ErrInvalidInput)
	}
	if err := validAmount(amount); err != nil {
		return SpendingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.activeEntity(caller)
	if err != nil {
		return SpendingRecord{}, fmt.Errorf("%s: %w", op, err)
	}
	if amount > e.Balance {
		return SpendingRecord{}, fmt.Errorf("%s: amount %d exceeds balance %d: %w", op, amount, e.Balance, ErrInsufficientFunds)
	}

	rec := SpendingRecord{
		ID:           int64(len(r.spendingRecords)) + 1,
		Entity:       caller,
		Purpose:      purpose,
		Amount:       amount,
		DocumentHash: documentHash,
		NeedToSpend:  amount,
		Timestamp:    r.now().Unix(),
	}
	next := *e
	next.Balance -= amount
	next.NeedToSpend += amount
	if err := r.persist(func(s Store) error { return s.SaveSpendingRecord(ctx, rec, next) }); err != nil {
		return SpendingRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	*e = next
	r.spendingRecords = append(r.spendingRecords, &rec)
	r.recordsByEntity[caller] = append(r.recordsByEntity[caller], &rec)
	r.log.Info("spending recorded", "entity", caller, "amount", amount, "purpose", purpose, "balance", e.Balance)
	return rec, nil
}

// RecordMicroTransaction itemizes part of a spending record owned by the
// caller, consuming the record's remaining needToSpend.
func (r *Registry) RecordMicroTransaction(ctx context.Context, caller string, spendingRecordID, amount int64, description string) (MicroTransaction, error) {
	const op = "registry.RecordMicroTransaction"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return MicroTransaction{}, fmt.Errorf("%s: caller: %w", op, err)
	}
	if description == "" {
		return MicroTransaction{}, fmt.Errorf("%s: description is required: %w", op, ErrInvalidInput)
	}
	if err := validAmount(amount); err != nil {
		return MicroTransaction{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.activeEntity(caller)
	if err != nil {
		return MicroTransaction{}, fmt.Errorf("%s: %w", op, err)
	}
	rec, err := r.spendingRecord(spendingRecordID)
	if err != nil {
		return MicroTransaction{}, fmt.Errorf("%s: %w", op, err)
	}
	if rec.Entity != caller {
		return MicroTransaction{}, fmt.Errorf("%s: spending record %d belongs to %s: %w", op, rec.ID, rec.Entity, ErrNotAuthorized)
	}
	if amount > rec.NeedToSpend {
		return MicroTransaction{}, fmt.Errorf("%s: amount %d exceeds remaining needToSpend %d: %w", op, amount, rec.NeedToSpend, ErrInsufficientFunds)
	}

	m := MicroTransaction{
		ID:               int64(len(r.microTransactions)) + 1,
		SpendingRecordID: rec.ID,
		Entity:           caller,
		Description:      description,
		Amount:           amount,
		Timestamp:        r.now().Unix(),
	}
	nextRec := *rec
	nextRec.NeedToSpend -= amount
	nextEnt := *e
	nextEnt.NeedToSpend -= amount
	if err := r.persist(func(s Store) error { return s.SaveMicroTransaction(ctx, m, nextRec, nextEnt) }); err != nil {
		return MicroTransaction{}, fmt.Errorf("%s: %w", op, err)
	}

	*rec = nextRec
	*e = nextEnt
	r.microTransactions = append(r.microTransactions, &m)
	r.microByRecord[rec.ID] = append(r.microByRecord[rec.ID], &m)
	return m, nil
}

// RequestFunds submits a pending fund request for the calling entity.
// No balance changes until the central authority resolves it.
func (r *Registry) RequestFunds(ctx context.Context, caller string, amount int64, reason, documentHash string) (FundRequest, error) {
	const op = "registry.RequestFunds"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return FundRequest{}, fmt.Errorf("%s: caller: %w", op, err)
	}
	if reason == "" {
		return FundRequest{}, fmt.Errorf("%s: reason is required: %w", op, ErrInvalidInput)
	}
	if err := validAmount(amount); err != nil {
		return FundRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.activeEntity(caller); err != nil {
		return FundRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	fr := FundRequest{
		ID:           int64(len(r.fundRequests)) + 1,
		Entity:       caller,
		Amount:       amount,
		Reason:       reason,
		DocumentHash: documentHash,
		Timestamp:    r.now().Unix(),
	}
	if err := r.persist(func(s Store) error { return s.SaveFundRequest(ctx, fr) }); err != nil {
		return FundRequest{}, fmt.Errorf("%s: %w", op, err)
	}

	r.fundRequests = append(r.fundRequests, &fr)
	r.requestsByEntity[caller] = append(r.requestsByEntity[caller], &fr)
	return fr, nil
}

// ApproveFundRequest credits the requesting entity and marks the request
// approved. Central authority only; resolved requests stay resolved.
func (r *Registry) ApproveFundRequest(ctx context.Context, caller string, id int64) error {
	return r.resolveFundRequest(ctx, "registry.ApproveFundRequest", caller, id, true)
}

// RejectFundRequest marks the request rejected without any balance change.
// Central authority only.
func (r *Registry) RejectFundRequest(ctx context.Context, caller string, id int64) error {
	return r.resolveFundRequest(ctx, "registry.RejectFundRequest", caller, id, false)
}

func (r *Registry) resolveFundRequest(ctx context.Context, op, caller string, id int64, approve bool) error {
	caller, err := normalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("%s: caller: %w", op, err)
	}
	if caller != r.central {
		return fmt.Errorf("%s: caller %s is not the central authority: %w", op, caller, ErrNotAuthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 1 || id > int64(len(r.fundRequests)) {
		return fmt.Errorf("%s: fund request %d: %w", op, id, ErrNotFound)
	}
	fr := r.fundRequests[id-1]
	if fr.IsApproved || fr.IsRejected {
		return fmt.Errorf("%s: fund request %d is already resolved: %w", op, id, ErrInvalidState)
	}
	e, ok := r.entity(fr.Entity)
	if !ok {
		return fmt.Errorf("%s: entity %s: %w", op, fr.Entity, ErrNotFound)
	}

	nextReq := *fr
	nextEnt := *e
	if approve {
		nextReq.IsApproved = true
		nextEnt.Balance += fr.Amount
	} else {
		nextReq.IsRejected = true
	}
	if err := r.persist(func(s Store) error { return s.ResolveFundRequest(ctx, nextReq, nextEnt) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	*fr = nextReq
	*e = nextEnt
	if approve {
		r.log.Info("fund request approved", "id", id, "entity", fr.Entity, "amount", fr.Amount, "balance", e.Balance)
	} else {
		r.log.Info("fund request rejected", "id", id, "entity", fr.Entity)
	}
	return nil
}

// GetSpendingRecords pages the global spending ledger.
func (r *Registry) GetSpendingRecords(offset, limit int) ([]SpendingRecord, error) {
	const op = "registry.GetSpendingRecords"

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.spendingRecords, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetEntitySpendingRecords pages one entity's spending records.
func (r *Registry) GetEntitySpendingRecords(entity string, offset, limit int) ([]SpendingRecord, error) {
	const op = "registry.GetEntitySpendingRecords"

	entity, err := normalizeAddress(entity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.recordsByEntity[entity], offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetFundRequests pages all fund requests.
func (r *Registry) GetFundRequests(offset, limit int) ([]FundRequest, error) {
	const op = "registry.GetFundRequests"

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.fundRequests, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetEntityFundRequests pages one entity's fund requests.
func (r *Registry) GetEntityFundRequests(entity string, offset, limit int) ([]FundRequest, error) {
	const op = "registry.GetEntityFundRequests"

	entity, err := normalizeAddress(entity)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.requestsByEntity[entity], offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetMicroTransactions pages the global micro-transaction ledger.
func (r *Registry) GetMicroTransactions(offset, limit int) ([]MicroTransaction, error) {
	const op = "registry.GetMicroTransactions"

	r.mu.Lock()
	defer r.mu.Unlock()

	out, err := pageOf(r.microTransactions, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// GetRecordMicroTransactions lists every micro-transaction itemizing one
// spending record.
func (r *Registry) GetRecordMicroTransactions(spendingRecordID int64) ([]MicroTransaction, error) {
	const op = "registry.GetRecordMicroTransactions"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.spendingRecord(spendingRecordID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	items := r.microByRecord[spendingRecordID]
	out := make([]MicroTransaction, 0, len(items))
	for _, m := range items {
		out = append(out, *m)
	}
	return out, nil
}
