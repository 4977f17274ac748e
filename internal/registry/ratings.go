package registry

import (
	"context"
	"fmt"
)

const (
	minRating = 1
	maxRating = 5
)

// VoteForEntity records a 1-5 rating for an active entity. Each voter may
// rate each entity once.
func (r *Registry) VoteForEntity(ctx context.Context, voter, entity string, rating int64) error {
	const op = "registry.VoteForEntity"

	voter, err := normalizeAddress(voter)
	if err != nil {
		return fmt.Errorf("%s: voter: %w", op, err)
	}
	entity, err = normalizeAddress(entity)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rating < minRating || rating > maxRating {
		return fmt.Errorf("%s: rating %d outside [%d, %d]: %w", op, rating, minRating, maxRating, ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.activeEntity(entity); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r.voted[voter][entity] {
		return fmt.Errorf("%s: voter %s already rated entity %s: %w", op, voter, entity, ErrAlreadyDone)
	}

	now := r.now().Unix()
	v := Vote{Voter: voter, Entity: entity, Rating: rating, Timestamp: now}

	agg := Rating{Entity: entity}
	if existing, ok := r.ratings[entity]; ok {
		agg = *existing
	}
	agg.CumulativeRating += rating
	agg.TotalVotes++
	agg.LastVoteTime = now

	if err := r.persist(func(s Store) error { return s.SaveVote(ctx, v, agg) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if r.voted[voter] == nil {
		r.voted[voter] = make(map[string]bool)
	}
	r.voted[voter][entity] = true
	r.votes = append(r.votes, &v)
	r.ratings[entity] = &agg
	r.log.Info("vote recorded", "voter", voter, "entity", entity, "rating", rating)
	return nil
}

// CheckVotingStatus reports whether a voter has already voted. With an
// entity address the check is scoped to that entity; with an empty entity
// it reports whether the voter has rated anything at all.
func (r *Registry) CheckVotingStatus(voter, entity string) (bool, error) {
	const op = "registry.CheckVotingStatus"

	voter, err := normalizeAddress(voter)
	if err != nil {
		return false, fmt.Errorf("%s: voter: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if entity == "" {
		return len(r.voted[voter]) > 0, nil
	}
	entity, err = normalizeAddress(entity)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return r.voted[voter][entity], nil
}

// GetEntityHappinessRating returns the integer average rating, vote count
// and last vote time for a registered entity.
func (r *Registry) GetEntityHappinessRating(entity string) (Rating, error) {
	const op = "registry.GetEntityHappinessRating"

	entity, err := normalizeAddress(entity)
	if err != nil {
		return Rating{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entity(entity); !ok {
		return Rating{}, fmt.Errorf("%s: entity %s: %w", op, entity, ErrNotFound)
	}
	if agg, ok := r.ratings[entity]; ok {
		return *agg, nil
	}
	return Rating{Entity: entity}, nil
}

// GetAllEntityRatings returns parallel slices of (address, average rating,
// vote count) for every rated entity, in registration order.
func (r *Registry) GetAllEntityRatings() (addresses []string, ratings, votes []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, address := range r.entityOrder {
		agg, ok := r.ratings[address]
		if !ok {
			continue
		}
		addresses = append(addresses, address)
		ratings = append(ratings, agg.Average())
		votes = append(votes, agg.TotalVotes)
	}
	return addresses, ratings, votes
}

// GetTimeUntilNextBonus returns the seconds remaining until a bonus
// distribution becomes legal, zero once the interval has elapsed.
func (r *Registry) GetTimeUntilNextBonus() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.lastDistribution + int64(r.bonusInterval.Seconds())
	now := r.now().Unix()
	if now >= next {
		return 0
	}
	return next - now
}

// FundBonusPool pays value into the bonus pool held by the registry.
// Central authority only.
func (r *Registry) FundBonusPool(ctx context.Context, caller string, amount int64) error {
	const op = "registry.FundBonusPool"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("%s: caller: %w", op, err)
	}
	if caller != r.central {
		return fmt.Errorf("%s: caller %s is not the central authority: %w", op, caller, ErrNotAuthorized)
	}
	if err := validAmount(amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pool := r.bonusPool + amount
	if err := r.persist(func(s Store) error { return s.SaveBonusState(ctx, pool, r.lastDistribution, nil) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.bonusPool = pool
	r.log.Info("bonus pool funded", "amount", amount, "pool", pool)
	return nil
}

// DistributeBonus splits the bonus pool across rated active entities
// proportional to their integer average rating, once per interval. The
// integer-division remainder stays in the pool. Central authority only.
func (r *Registry) DistributeBonus(ctx context.Context, caller string) error {
	const op = "registry.DistributeBonus"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return fmt.Errorf("%s: caller: %w", op, err)
	}
	if caller != r.central {
		return fmt.Errorf("%s: caller %s is not the central authority: %w", op, caller, ErrNotAuthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().Unix()
	if next := r.lastDistribution + int64(r.bonusInterval.Seconds()); now < next {
		return fmt.Errorf("%s: distribution interval has not elapsed, %d seconds remain: %w", op, next-now, ErrInvalidState)
	}
	if r.bonusPool == 0 {
		return fmt.Errorf("%s: bonus pool is empty: %w", op, ErrInvalidState)
	}

	var totalWeight int64
	weights := make(map[string]int64)
	for _, address := range r.entityOrder {
		agg, ok := r.ratings[address]
		if !ok || agg.TotalVotes == 0 {
			continue
		}
		e := r.entities[address]
		if !e.IsActive {
			continue
		}
		w := agg.Average()
		weights[address] = w
		totalWeight += w
	}
	if totalWeight == 0 {
		return fmt.Errorf("%s: no rated active entities: %w", op, ErrInvalidState)
	}

	deltas := make(map[string]int64, len(weights))
	distributed := int64(0)
	for address, w := range weights {
		share := r.bonusPool * w / totalWeight
		deltas[address] = share
		distributed += share
	}

	pool := r.bonusPool - distributed
	updated := r.stageDeltas(deltas)
	if err := r.persist(func(s Store) error { return s.SaveBonusState(ctx, pool, now, updated) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.applyEntities(updated)
	r.bonusPool = pool
	r.lastDistribution = now
	r.log.Info("bonus distributed", "amount", distributed, "remaining", pool, "entities", len(updated))
	return nil
}
