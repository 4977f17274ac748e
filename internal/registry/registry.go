package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultBonusInterval is the minimum time between bonus distributions.
const DefaultBonusInterval = 24 * time.Hour

// Store receives every committed mutation for durability and rebuilds the
// registry state at startup. Each Save method must apply all of its rows in
// a single transaction.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)

	SaveEntity(ctx context.Context, e Entity) error
	DeleteEntity(ctx context.Context, address string) error

	SaveIssuedFund(ctx context.Context, f IssuedFund, e Entity) error
	SaveSpendingRecord(ctx context.Context, rec SpendingRecord, e Entity) error
	SaveMicroTransaction(ctx context.Context, m MicroTransaction, rec SpendingRecord, e Entity) error
	SaveFundRequest(ctx context.Context, fr FundRequest) error
	ResolveFundRequest(ctx context.Context, fr FundRequest, e Entity) error

	SaveTender(ctx context.Context, t Tender) error
	SaveBid(ctx context.Context, b Bid, t Tender, bidder Entity, escrowHeld int64) error
	SaveBidWithdrawal(ctx context.Context, b Bid, bidder Entity, escrowHeld int64) error
	CloseTender(ctx context.Context, t Tender, entities []Entity, escrowHeld int64) error

	SaveVote(ctx context.Context, v Vote, r Rating) error
	SaveBonusState(ctx context.Context, pool, lastDistribution int64, entities []Entity) error
}

// Snapshot is the full registry state as loaded from a Store. Slices are in
// insertion (id) order.
type Snapshot struct {
	Entities          []Entity
	IssuedFunds       []IssuedFund
	SpendingRecords   []SpendingRecord
	MicroTransactions []MicroTransaction
	FundRequests      []FundRequest
	Tenders           []Tender
	Bids              []Bid
	Votes             []Vote
	Ratings           []Rating
	EscrowHeld        int64
	BonusPool         int64
	LastDistribution  int64
}

// Registry is the spending and governance state machine. Every operation
// runs to completion under one mutex: mutations are serialized, reads see
// the last committed state. Mutations validate first, persist to the store
// second and only then touch in-memory state, so a failed persist leaves
// the registry unchanged.
type Registry struct {
	mu      sync.Mutex
	central string
	store   Store
	now     func() time.Time
	log     *slog.Logger

	bonusInterval    time.Duration
	bonusPool        int64
	lastDistribution int64
	escrowHeld       int64

	entities    map[string]*Entity
	entityOrder []string

	issuedFunds []*IssuedFund

	spendingRecords []*SpendingRecord
	recordsByEntity map[string][]*SpendingRecord

	microTransactions []*MicroTransaction
	microByRecord     map[int64][]*MicroTransaction

	fundRequests     []*FundRequest
	requestsByEntity map[string][]*FundRequest

	tenders     []*Tender
	bidsByTender map[int64][]*Bid
	nextBidID    int64

	voted   map[string]map[string]bool
	votes   []*Vote
	ratings map[string]*Rating
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger for auditable ledger events.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithBonusInterval overrides the bonus distribution interval.
func WithBonusInterval(d time.Duration) Option {
	return func(r *Registry) { r.bonusInterval = d }
}

// New creates a registry governed by the central authority address. A nil
// store runs memory-only; otherwise the state is rebuilt from the store's
// snapshot.
func New(ctx context.Context, central string, store Store, opts ...Option) (*Registry, error) {
	const op = "registry.New"

	central, err := normalizeAddress(central)
	if err != nil {
		return nil, fmt.Errorf("%s: central authority: %w", op, err)
	}

	r := &Registry{
		central:          central,
		store:            store,
		now:              time.Now,
		log:              slog.Default(),
		bonusInterval:    DefaultBonusInterval,
		entities:         make(map[string]*Entity),
		recordsByEntity:  make(map[string][]*SpendingRecord),
		microByRecord:    make(map[int64][]*MicroTransaction),
		requestsByEntity: make(map[string][]*FundRequest),
		bidsByTender:     make(map[int64][]*Bid),
		voted:            make(map[string]map[string]bool),
		ratings:          make(map[string]*Rating),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastDistribution = r.now().Unix()

	if store != nil {
		snap, err := store.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: load snapshot: %w", op, err)
		}
		if snap != nil {
			r.restore(snap)
		}
	}
	return r, nil
}

// CentralAuthority returns the privileged address fixed at construction.
func (r *Registry) CentralAuthority() string {
	return r.central
}

// ContractBalance is the total balance held by the registry itself: bid
// escrow plus the undistributed bonus pool.
func (r *Registry) ContractBalance() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.escrowHeld + r.bonusPool
}

// EscrowHeld is the sum of all live bid deposits.
func (r *Registry) EscrowHeld() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.escrowHeld
}

// BonusPool is the undistributed bonus balance.
func (r *Registry) BonusPool() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bonusPool
}

func (r *Registry) restore(snap *Snapshot) {
	for i := range snap.Entities {
		e := snap.Entities[i]
		r.entities[e.Address] = &e
		r.entityOrder = append(r.entityOrder, e.Address)
	}
	for i := range snap.IssuedFunds {
		f := snap.IssuedFunds[i]
		r.issuedFunds = append(r.issuedFunds, &f)
	}
	for i := range snap.SpendingRecords {
		rec := snap.SpendingRecords[i]
		r.spendingRecords = append(r.spendingRecords, &rec)
		r.recordsByEntity[rec.Entity] = append(r.recordsByEntity[rec.Entity], &rec)
	}
	for i := range snap.MicroTransactions {
		m := snap.MicroTransactions[i]
		r.microTransactions = append(r.microTransactions, &m)
		r.microByRecord[m.SpendingRecordID] = append(r.microByRecord[m.SpendingRecordID], &m)
	}
	for i := range snap.FundRequests {
		fr := snap.FundRequests[i]
		r.fundRequests = append(r.fundRequests, &fr)
		r.requestsByEntity[fr.Entity] = append(r.requestsByEntity[fr.Entity], &fr)
	}
	for i := range snap.Tenders {
		t := snap.Tenders[i]
		r.tenders = append(r.tenders, &t)
		if _, ok := r.bidsByTender[t.ID]; !ok {
			r.bidsByTender[t.ID] = nil
		}
	}
	bids := make([]Bid, len(snap.Bids))
	copy(bids, snap.Bids)
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].ID < bids[j].ID })
	for i := range bids {
		b := bids[i]
		r.bidsByTender[b.TenderID] = append(r.bidsByTender[b.TenderID], &b)
		if b.ID > r.nextBidID {
			r.nextBidID = b.ID
		}
	}
	for i := range snap.Votes {
		v := snap.Votes[i]
		r.votes = append(r.votes, &v)
		if r.voted[v.Voter] == nil {
			r.voted[v.Voter] = make(map[string]bool)
		}
		r.voted[v.Voter][v.Entity] = true
	}
	for i := range snap.Ratings {
		rt := snap.Ratings[i]
		r.ratings[rt.Entity] = &rt
	}
	r.escrowHeld = snap.EscrowHeld
	r.bonusPool = snap.BonusPool
	if snap.LastDistribution > 0 {
		r.lastDistribution = snap.LastDistribution
	}
}

// persist invokes fn only when a store is configured, keeping memory-only
// registries valid.
func (r *Registry) persist(fn func(s Store) error) error {
	if r.store == nil {
		return nil
	}
	return fn(r.store)
}

func (r *Registry) entity(address string) (*Entity, bool) {
	e, ok := r.entities[address]
	return e, ok
}

// activeEntity resolves an address to a registered, active entity.
func (r *Registry) activeEntity(address string) (*Entity, error) {
	e, ok := r.entities[address]
	if !ok {
		return nil, fmt.Errorf("entity %s: %w", address, ErrNotFound)
	}
	if !e.IsActive {
		return nil, fmt.Errorf("entity %s is not active: %w", address, ErrInvalidState)
	}
	return e, nil
}

func (r *Registry) tender(id int64) (*Tender, error) {
	if id < 1 || id > int64(len(r.tenders)) {
		return nil, fmt.Errorf("tender %d: %w", id, ErrNotFound)
	}
	return r.tenders[id-1], nil
}

func (r *Registry) spendingRecord(id int64) (*SpendingRecord, error) {
	if id < 1 || id > int64(len(r.spendingRecords)) {
		return nil, fmt.Errorf("spending record %d: %w", id, ErrNotFound)
	}
	return r.spendingRecords[id-1], nil
}

// pageOf copies the requested window of an append-only collection. An
// offset past the end yields an empty, non-nil slice.
func pageOf[T any](items []*T, offset, limit int) ([]T, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative: %w", ErrInvalidInput)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", ErrInvalidInput)
	}
	if offset >= len(items) {
		return []T{}, nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, 0, end-offset)
	for _, item := range items[offset:end] {
		out = append(out, *item)
	}
	return out, nil
}

func normalizeAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if !isAddress(address) {
		return "", fmt.Errorf("malformed address %q: %w", address, ErrInvalidInput)
	}
	return address, nil
}

// isAddress reports whether s is a 0x-prefixed 20-byte hex address.
func isAddress(s string) bool {
	if len(s) != 42 || s[0] != '0' || s[1] != 'x' {
		return false
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func validAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive: %w", ErrInvalidInput)
	}
	return nil
}
