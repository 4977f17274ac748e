package registry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendregistry/internal/registry"
)

func TestVoteForEntityAggregates(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 5))
	require.NoError(t, r.VoteForEntity(ctx, deptB, deptC, 2))

	rating, err := r.GetEntityHappinessRating(deptC)
	require.NoError(t, err)
	require.Equal(t, int64(7), rating.CumulativeRating)
	require.Equal(t, int64(2), rating.TotalVotes)
	require.Equal(t, int64(3), rating.Average())
}

func TestVoteForEntityOncePerVoter(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 5))
	require.ErrorIs(t, r.VoteForEntity(ctx, deptA, deptC, 1), registry.ErrAlreadyDone)

	// the failed vote left the aggregate untouched
	rating, err := r.GetEntityHappinessRating(deptC)
	require.NoError(t, err)
	require.Equal(t, int64(1), rating.TotalVotes)
	require.Equal(t, int64(5), rating.CumulativeRating)

	// same voter may still rate a different entity
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
}

func TestVoteForEntityValidation(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.ErrorIs(t, r.VoteForEntity(ctx, deptA, deptC, 0), registry.ErrInvalidInput)
	require.ErrorIs(t, r.VoteForEntity(ctx, deptA, deptC, 6), registry.ErrInvalidInput)
	require.ErrorIs(t, r.VoteForEntity(ctx, deptA, addr(0x99), 3), registry.ErrNotFound)
}

func TestCheckVotingStatus(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	voted, err := r.CheckVotingStatus(deptA, deptC)
	require.NoError(t, err)
	require.False(t, voted)

	voted, err = r.CheckVotingStatus(deptA, "")
	require.NoError(t, err)
	require.False(t, voted)

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 5))

	voted, err = r.CheckVotingStatus(deptA, deptC)
	require.NoError(t, err)
	require.True(t, voted)

	voted, err = r.CheckVotingStatus(deptA, deptB)
	require.NoError(t, err)
	require.False(t, voted)

	voted, err = r.CheckVotingStatus(deptA, "")
	require.NoError(t, err)
	require.True(t, voted)
}

func TestGetEntityHappinessRatingUnrated(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)

	rating, err := r.GetEntityHappinessRating(deptA)
	require.NoError(t, err)
	require.Zero(t, rating.TotalVotes)
	require.Zero(t, rating.Average())

	_, err = r.GetEntityHappinessRating(addr(0x99))
	require.ErrorIs(t, err, registry.ErrNotFound)
}

func TestGetAllEntityRatingsSkipsUnrated(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 2))

	addresses, ratings, votes := r.GetAllEntityRatings()
	require.Equal(t, []string{deptB, deptC}, addresses)
	require.Equal(t, []int64{4, 2}, ratings)
	require.Equal(t, []int64{1, 1}, votes)
}

func TestDistributeBonusProportionalToAverage(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	// deptB averages 4, deptC averages 2
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 2))
	require.NoError(t, r.FundBonusPool(ctx, central, 600))

	clk.Advance(registry.DefaultBonusInterval)
	require.NoError(t, r.DistributeBonus(ctx, central))

	b, err := r.GetEntityDetails(deptB)
	require.NoError(t, err)
	require.Equal(t, int64(400), b.Balance)

	c, err := r.GetEntityDetails(deptC)
	require.NoError(t, err)
	require.Equal(t, int64(200), c.Balance)

	require.Zero(t, r.BonusPool())
}

func TestDistributeBonusRemainderStaysInPool(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 2))
	require.NoError(t, r.FundBonusPool(ctx, central, 601))

	clk.Advance(registry.DefaultBonusInterval)
	require.NoError(t, r.DistributeBonus(ctx, central))

	// 601*4/6=400, 601*2/6=200, one unit stays behind
	require.Equal(t, int64(1), r.BonusPool())
}

func TestDistributeBonusIntervalGate(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
	require.NoError(t, r.FundBonusPool(ctx, central, 600))

	require.ErrorIs(t, r.DistributeBonus(ctx, central), registry.ErrInvalidState)
	require.Positive(t, r.GetTimeUntilNextBonus())

	clk.Advance(registry.DefaultBonusInterval)
	require.Zero(t, r.GetTimeUntilNextBonus())
	require.NoError(t, r.DistributeBonus(ctx, central))

	// the interval restarts after a distribution
	require.NoError(t, r.FundBonusPool(ctx, central, 100))
	require.ErrorIs(t, r.DistributeBonus(ctx, central), registry.ErrInvalidState)
}

func TestDistributeBonusChecks(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.ErrorIs(t, r.DistributeBonus(ctx, deptA), registry.ErrNotAuthorized)
	require.ErrorIs(t, r.FundBonusPool(ctx, deptA, 100), registry.ErrNotAuthorized)
	require.ErrorIs(t, r.FundBonusPool(ctx, central, 0), registry.ErrInvalidInput)

	clk.Advance(registry.DefaultBonusInterval)
	require.ErrorIs(t, r.DistributeBonus(ctx, central), registry.ErrInvalidState, "empty pool")

	require.NoError(t, r.FundBonusPool(ctx, central, 100))
	require.ErrorIs(t, r.DistributeBonus(ctx, central), registry.ErrInvalidState, "no rated entities")
}

func TestDistributeBonusSkipsDeactivatedEntities(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 4))
	require.NoError(t, r.VoteForEntity(ctx, deptA, deptC, 4))
	require.NoError(t, r.DeactivateEntity(ctx, central, deptC))
	require.NoError(t, r.FundBonusPool(ctx, central, 600))

	clk.Advance(registry.DefaultBonusInterval)
	require.NoError(t, r.DistributeBonus(ctx, central))

	b, err := r.GetEntityDetails(deptB)
	require.NoError(t, err)
	require.Equal(t, int64(600), b.Balance)

	c, err := r.GetEntityDetails(deptC)
	require.NoError(t, err)
	require.Zero(t, c.Balance)
}

func TestCustomBonusInterval(t *testing.T) {
	clk := newClock()
	r, err := registry.New(context.Background(), central, nil,
		registry.WithClock(clk.Now),
		registry.WithLogger(quietLogger()),
		registry.WithBonusInterval(time.Hour))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = r.RegisterEntity(ctx, central, deptA, "Dept 1")
	require.NoError(t, err)
	_, err = r.RegisterEntity(ctx, central, deptB, "Dept 2")
	require.NoError(t, err)

	require.NoError(t, r.VoteForEntity(ctx, deptA, deptB, 5))
	require.NoError(t, r.FundBonusPool(ctx, central, 100))

	clk.Advance(time.Hour)
	require.NoError(t, r.DistributeBonus(ctx, central))
}
