package registry_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spendregistry/internal/registry"
)

var (
	central = addr(0xa)
	deptA   = addr(0xb)
	deptB   = addr(0xc)
	deptC   = addr(0xd)
)

func addr(n int64) string {
	return fmt.Sprintf("0x%040x", n)
}

// clock is an adjustable time source for deterministic tests.
type clock struct {
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Unix(1_700_000_000, 0)}
}

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRegistry builds a memory-only registry with three active entities.
func newRegistry(t *testing.T, clk *clock) *registry.Registry {
	t.Helper()

	r, err := registry.New(context.Background(), central, nil,
		registry.WithClock(clk.Now),
		registry.WithLogger(quietLogger()))
	require.NoError(t, err)

	for i, a := range []string{deptA, deptB, deptC} {
		_, err := r.RegisterEntity(context.Background(), central, a, fmt.Sprintf("Dept %d", i+1))
		require.NoError(t, err)
	}
	return r
}

func TestNewRejectsMalformedCentralAuthority(t *testing.T) {
	_, err := registry.New(context.Background(), "0x123", nil)
	require.ErrorIs(t, err, registry.ErrInvalidInput)
}

func TestNewNormalizesCentralAuthority(t *testing.T) {
	upper := "0x" + "00000000000000000000000000000000000000AB"
	r, err := registry.New(context.Background(), upper, nil)
	require.NoError(t, err)
	require.Equal(t, "0x00000000000000000000000000000000000000ab", r.CentralAuthority())
}

func TestPaginationWindowing(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := r.IssueFunds(ctx, central, deptA, int64(100*(i+1)))
		require.NoError(t, err)
	}

	// adjacent pages cover the ledger without gaps or duplicates
	var collected []int64
	for offset := 0; offset < 7; offset += 3 {
		page, err := r.GetIssuedFunds(offset, 3)
		require.NoError(t, err)
		for _, f := range page {
			collected = append(collected, f.ID)
		}
	}
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, collected)
}

func TestPaginationOffsetPastEnd(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)

	page, err := r.GetIssuedFunds(100, 10)
	require.NoError(t, err)
	require.NotNil(t, page)
	require.Empty(t, page)
}

func TestPaginationInvalidParams(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)

	_, err := r.GetIssuedFunds(-1, 10)
	require.ErrorIs(t, err, registry.ErrInvalidInput)

	_, err = r.GetIssuedFunds(0, 0)
	require.ErrorIs(t, err, registry.ErrInvalidInput)
}

func TestContractBalanceIsEscrowPlusBonusPool(t *testing.T) {
	clk := newClock()
	r := newRegistry(t, clk)
	ctx := context.Background()

	_, err := r.IssueFunds(ctx, central, deptA, 10_000)
	require.NoError(t, err)
	_, err = r.IssueFunds(ctx, central, deptB, 10_000)
	require.NoError(t, err)

	_, err = r.IssueTender(ctx, deptA, "Bridge", "Build a bridge over the river", 5000, clk.Now().Unix()+3600, 100, 2000)
	require.NoError(t, err)
	_, err = r.PlaceBid(ctx, deptB, 1, 1500)
	require.NoError(t, err)

	require.NoError(t, r.FundBonusPool(ctx, central, 333))

	require.Equal(t, int64(1500), r.EscrowHeld())
	require.Equal(t, int64(333), r.BonusPool())
	require.Equal(t, int64(1833), r.ContractBalance())
}
