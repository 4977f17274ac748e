package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"spendregistry/internal/registry"
)

// Storage persists registry state in Postgres. It implements
// registry.Store: every committed mutation lands in one SQL transaction,
// and Load rebuilds the full snapshot at startup.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

func (s *Storage) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

const upsertEntityQuery = `
    INSERT INTO entity (address, name, is_active, is_pending, balance, need_to_spend, registered_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    ON CONFLICT (address) DO UPDATE SET
        name = EXCLUDED.name,
        is_active = EXCLUDED.is_active,
        is_pending = EXCLUDED.is_pending,
        balance = EXCLUDED.balance,
        need_to_spend = EXCLUDED.need_to_spend`

func upsertEntity(ctx context.Context, tx *sqlx.Tx, e registry.Entity) error {
	_, err := tx.ExecContext(ctx, upsertEntityQuery,
		e.Address, e.Name, e.IsActive, e.IsPending, e.Balance, e.NeedToSpend, e.RegisteredAt)
	return err
}

func setEscrow(ctx context.Context, tx *sqlx.Tx, escrowHeld int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE registry_state SET escrow_held = $1 WHERE id = 1`, escrowHeld)
	return err
}

func (s *Storage) SaveEntity(ctx context.Context, e registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		return upsertEntity(ctx, tx, e)
	})
}

func (s *Storage) DeleteEntity(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM entity WHERE address = $1`, address)
	return err
}

func (s *Storage) SaveIssuedFund(ctx context.Context, f registry.IssuedFund, e registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO issued_fund (id, entity, amount, timestamp)
        VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, query, f.ID, f.Entity, f.Amount, f.Timestamp); err != nil {
			return err
		}
		return upsertEntity(ctx, tx, e)
	})
}

func (s *Storage) SaveSpendingRecord(ctx context.Context, rec registry.SpendingRecord, e registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO spending_record (id, entity, purpose, amount, document_hash, need_to_spend, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
		if _, err := tx.ExecContext(ctx, query,
			rec.ID, rec.Entity, rec.Purpose, rec.Amount, rec.DocumentHash, rec.NeedToSpend, rec.Timestamp); err != nil {
			return err
		}
		return upsertEntity(ctx, tx, e)
	})
}

func (s *Storage) SaveMicroTransaction(ctx context.Context, m registry.MicroTransaction, rec registry.SpendingRecord, e registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO micro_transaction (id, spending_record_id, entity, description, amount, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, query,
			m.ID, m.SpendingRecordID, m.Entity, m.Description, m.Amount, m.Timestamp); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE spending_record SET need_to_spend = $1 WHERE id = $2`, rec.NeedToSpend, rec.ID); err != nil {
			return err
		}
		return upsertEntity(ctx, tx, e)
	})
}

func (s *Storage) SaveFundRequest(ctx context.Context, fr registry.FundRequest) error {
	query := `
    INSERT INTO fund_request (id, entity, amount, reason, document_hash, timestamp, is_approved, is_rejected)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		fr.ID, fr.Entity, fr.Amount, fr.Reason, fr.DocumentHash, fr.Timestamp, fr.IsApproved, fr.IsRejected)
	return err
}

func (s *Storage) ResolveFundRequest(ctx context.Context, fr registry.FundRequest, e registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `UPDATE fund_request SET is_approved = $1, is_rejected = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, fr.IsApproved, fr.IsRejected, fr.ID); err != nil {
			return err
		}
		return upsertEntity(ctx, tx, e)
	})
}

func (s *Storage) SaveTender(ctx context.Context, t registry.Tender) error {
	query := `
    INSERT INTO tender
        (id, title, description, amount, deadline, issuer, is_active, winner, winning_bid, min_bid_amount, max_bid_amount, bid_count)
    VALUES
        ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := s.db.ExecContext(ctx, query,
		t.ID, t.Title, t.Description, t.Amount, t.Deadline, t.Issuer,
		t.IsActive, t.Winner, t.WinningBid, t.MinBidAmount, t.MaxBidAmount, t.BidCount)
	return err
}

func (s *Storage) SaveBid(ctx context.Context, b registry.Bid, t registry.Tender, bidder registry.Entity, escrowHeld int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO bid (id, tender_id, bidder, amount, timestamp, is_withdrawn)
        VALUES ($1, $2, $3, $4, $5, $6)`
		if _, err := tx.ExecContext(ctx, query,
			b.ID, b.TenderID, b.Bidder, b.Amount, b.Timestamp, b.IsWithdrawn); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE tender SET bid_count = $1 WHERE id = $2`, t.BidCount, t.ID); err != nil {
			return err
		}
		if err := upsertEntity(ctx, tx, bidder); err != nil {
			return err
		}
		return setEscrow(ctx, tx, escrowHeld)
	})
}

func (s *Storage) SaveBidWithdrawal(ctx context.Context, b registry.Bid, bidder registry.Entity, escrowHeld int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE bid SET is_withdrawn = TRUE WHERE id = $1`, b.ID); err != nil {
			return err
		}
		if err := upsertEntity(ctx, tx, bidder); err != nil {
			return err
		}
		return setEscrow(ctx, tx, escrowHeld)
	})
}

func (s *Storage) CloseTender(ctx context.Context, t registry.Tender, entities []registry.Entity, escrowHeld int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `UPDATE tender SET is_active = FALSE, winner = $1, winning_bid = $2 WHERE id = $3`
		if _, err := tx.ExecContext(ctx, query, t.Winner, t.WinningBid, t.ID); err != nil {
			return err
		}
		for _, e := range entities {
			if err := upsertEntity(ctx, tx, e); err != nil {
				return err
			}
		}
		return setEscrow(ctx, tx, escrowHeld)
	})
}

func (s *Storage) SaveVote(ctx context.Context, v registry.Vote, r registry.Rating) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
        INSERT INTO vote (voter, entity, rating, timestamp)
        VALUES ($1, $2, $3, $4)`
		if _, err := tx.ExecContext(ctx, query, v.Voter, v.Entity, v.Rating, v.Timestamp); err != nil {
			return err
		}
		upsert := `
        INSERT INTO rating (entity, cumulative_rating, total_votes, last_vote_time)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (entity) DO UPDATE SET
            cumulative_rating = EXCLUDED.cumulative_rating,
            total_votes = EXCLUDED.total_votes,
            last_vote_time = EXCLUDED.last_vote_time`
		_, err := tx.ExecContext(ctx, upsert, r.Entity, r.CumulativeRating, r.TotalVotes, r.LastVoteTime)
		return err
	})
}

func (s *Storage) SaveBonusState(ctx context.Context, pool, lastDistribution int64, entities []registry.Entity) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `UPDATE registry_state SET bonus_pool = $1, last_distribution = $2 WHERE id = 1`
		if _, err := tx.ExecContext(ctx, query, pool, lastDistribution); err != nil {
			return err
		}
		for _, e := range entities {
			if err := upsertEntity(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the full registry snapshot, every collection in id order.
func (s *Storage) Load(ctx context.Context) (*registry.Snapshot, error) {
	snap := &registry.Snapshot{}

	if err := s.db.SelectContext(ctx, &snap.Entities,
		`SELECT * FROM entity ORDER BY registered_at ASC, address ASC`); err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.IssuedFunds,
		`SELECT * FROM issued_fund ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load issued funds: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.SpendingRecords,
		`SELECT * FROM spending_record ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load spending records: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.MicroTransactions,
		`SELECT * FROM micro_transaction ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load micro transactions: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.FundRequests,
		`SELECT * FROM fund_request ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load fund requests: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Tenders,
		`SELECT * FROM tender ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load tenders: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Bids,
		`SELECT * FROM bid ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("load bids: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Votes,
		`SELECT * FROM vote ORDER BY timestamp ASC, voter ASC`); err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	if err := s.db.SelectContext(ctx, &snap.Ratings,
		`SELECT * FROM rating ORDER BY entity ASC`); err != nil {
		return nil, fmt.Errorf("load ratings: %w", err)
	}

	state := struct {
		EscrowHeld       int64 `db:"escrow_held"`
		BonusPool        int64 `db:"bonus_pool"`
		LastDistribution int64 `db:"last_distribution"`
	}{}
	if err := s.db.GetContext(ctx, &state,
		`SELECT escrow_held, bonus_pool, last_distribution FROM registry_state WHERE id = 1`); err != nil {
		return nil, fmt.Errorf("load registry state: %w", err)
	}
	snap.EscrowHeld = state.EscrowHeld
	snap.BonusPool = state.BonusPool
	snap.LastDistribution = state.LastDistribution
	return snap, nil
}
