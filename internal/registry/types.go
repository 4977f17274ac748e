package registry

// Entity is a registered government body with a ledger balance.
// Pending entities came in through self-registration and stay inactive
// until the central authority approves them.
type Entity struct {
	Address      string `db:"address" json:"address"`
	Name         string `db:"name" json:"name"`
	IsActive     bool   `db:"is_active" json:"isActive"`
	IsPending    bool   `db:"is_pending" json:"isPending"`
	Balance      int64  `db:"balance" json:"balance"`
	NeedToSpend  int64  `db:"need_to_spend" json:"needToSpend"`
	RegisteredAt int64  `db:"registered_at" json:"registeredAt"`
}

// IssuedFund is one fund issuance by the central authority.
type IssuedFund struct {
	ID        int64  `db:"id" json:"id"`
	Entity    string `db:"entity" json:"entity"`
	Amount    int64  `db:"amount" json:"amount"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// SpendingRecord is an append-only ledger entry. NeedToSpend starts at
// Amount and shrinks as micro-transactions itemize the spending.
type SpendingRecord struct {
	ID           int64  `db:"id" json:"id"`
	Entity       string `db:"entity" json:"entity"`
	Purpose      string `db:"purpose" json:"purpose"`
	Amount       int64  `db:"amount" json:"amount"`
	DocumentHash string `db:"document_hash" json:"documentHash"`
	NeedToSpend  int64  `db:"need_to_spend" json:"needToSpend"`
	Timestamp    int64  `db:"timestamp" json:"timestamp"`
}

// MicroTransaction itemizes part of a parent spending record.
type MicroTransaction struct {
	ID               int64  `db:"id" json:"id"`
	SpendingRecordID int64  `db:"spending_record_id" json:"spendingRecordId"`
	Entity           string `db:"entity" json:"entity"`
	Description      string `db:"description" json:"description"`
	Amount           int64  `db:"amount" json:"amount"`
	Timestamp        int64  `db:"timestamp" json:"timestamp"`
}

// FundRequest is an entity's ask for additional balance. Both flags false
// means pending; exactly one of them may ever become true.
type FundRequest struct {
	ID           int64  `db:"id" json:"id"`
	Entity       string `db:"entity" json:"entity"`
	Amount       int64  `db:"amount" json:"amount"`
	Reason       string `db:"reason" json:"reason"`
	DocumentHash string `db:"document_hash" json:"documentHash"`
	Timestamp    int64  `db:"timestamp" json:"timestamp"`
	IsApproved   bool   `db:"is_approved" json:"isApproved"`
	IsRejected   bool   `db:"is_rejected" json:"isRejected"`
}

// Tender is a procurement opportunity issued by an entity.
type Tender struct {
	ID           int64  `db:"id" json:"id"`
	Title        string `db:"title" json:"title"`
	Description  string `db:"description" json:"description"`
	Amount       int64  `db:"amount" json:"amount"`
	Deadline     int64  `db:"deadline" json:"deadline"`
	Issuer       string `db:"issuer" json:"issuer"`
	IsActive     bool   `db:"is_active" json:"isActive"`
	Winner       string `db:"winner" json:"winner"`
	WinningBid   int64  `db:"winning_bid" json:"winningBid"`
	MinBidAmount int64  `db:"min_bid_amount" json:"minBidAmount"`
	MaxBidAmount int64  `db:"max_bid_amount" json:"maxBidAmount"`
	BidCount     int64  `db:"bid_count" json:"bidCount"`
}

// Bid is a deposit-backed offer on a tender. The amount is escrowed by the
// registry until withdrawal or tender resolution.
type Bid struct {
	ID          int64  `db:"id" json:"id"`
	TenderID    int64  `db:"tender_id" json:"tenderId"`
	Bidder      string `db:"bidder" json:"bidder"`
	Amount      int64  `db:"amount" json:"amount"`
	Timestamp   int64  `db:"timestamp" json:"timestamp"`
	IsWithdrawn bool   `db:"is_withdrawn" json:"isWithdrawn"`
}

// Vote is one voter's rating of one entity. A (voter, entity) pair votes
// at most once.
type Vote struct {
	Voter     string `db:"voter" json:"voter"`
	Entity    string `db:"entity" json:"entity"`
	Rating    int64  `db:"rating" json:"rating"`
	Timestamp int64  `db:"timestamp" json:"timestamp"`
}

// Rating is the per-entity vote aggregate.
type Rating struct {
	Entity           string `db:"entity" json:"entity"`
	CumulativeRating int64  `db:"cumulative_rating" json:"cumulativeRating"`
	TotalVotes       int64  `db:"total_votes" json:"totalVotes"`
	LastVoteTime     int64  `db:"last_vote_time" json:"lastVoteTime"`
}

// Average returns the integer average rating, zero when unrated.
func (r Rating) Average() int64 {
	if r.TotalVotes == 0 {
		return 0
	}
	return r.CumulativeRating / r.TotalVotes
}
