package ledger_test

import (
	"context"
	"testing"

	"github.com/rustyeddy/papertrade/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// copyHarness: bob holds 0.05 BTC, alice holds 1 ETH bought at 2,000.
func copyHarness(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, map[string]string{"BTC-USD": "50000", "ETH-USD": "2000"}, "alice", "bob", "carol")
	ctx := context.Background()

	_, err := h.engine.ExecuteBuy(ctx, "bob", "BTC", d("0.05"), ledger.Units)
	require.NoError(t, err)
	_, err = h.engine.ExecuteBuy(ctx, "alice", "ETH", d("1"), ledger.Units)
	require.NoError(t, err)
	return h
}

func TestCopyTradeMerge(t *testing.T) {
	h := copyHarness(t)

	res, err := h.engine.ExecuteCopyTrade(context.Background(), "alice", "bob", ledger.Merge)
	require.NoError(t, err)
	assert.Equal(t, "merge", res.Mode)
	assert.Empty(t, res.Liquidated)
	require.Len(t, res.Bought, 1)
	assert.True(t, res.TotalCost.Equal(d("2500")))
	assert.True(t, res.Cash.Equal(d("5500")))

	btc, ok := h.position(t, "alice", "BTC")
	require.True(t, ok)
	assert.True(t, btc.Quantity.Equal(d("0.05")))
	_, ok = h.position(t, "alice", "ETH")
	assert.True(t, ok)

	// the source is untouched
	assert.True(t, h.cash(t, "bob").Equal(d("7500")))
	assert.Len(t, h.history(t, "bob"), 1)
}

func TestCopyTradeMergeAddsToExistingPosition(t *testing.T) {
	h := copyHarness(t)
	ctx := context.Background()

	_, err := h.engine.ExecuteBuy(ctx, "alice", "BTC", d("0.05"), ledger.Units)
	require.NoError(t, err)
	h.prices.Set("BTC-USD", d("30000"))

	_, err = h.engine.ExecuteCopyTrade(ctx, "alice", "bob", ledger.Merge)
	require.NoError(t, err)

	btc, ok := h.position(t, "alice", "BTC")
	require.True(t, ok)
	assert.True(t, btc.Quantity.Equal(d("0.1")))
	assert.True(t, btc.AvgPrice.Equal(d("40000")), btc.AvgPrice.String())
}

func TestCopyTradeReplace(t *testing.T) {
	h := copyHarness(t)
	h.prices.Set("ETH-USD", d("3000"))

	res, err := h.engine.ExecuteCopyTrade(context.Background(), "alice", "bob", ledger.Replace)
	require.NoError(t, err)
	assert.Equal(t, "replace", res.Mode)

	// liquidation happens at average cost, not market
	require.Len(t, res.Liquidated, 1)
	assert.Equal(t, ledger.Sell, res.Liquidated[0].Side)
	assert.Equal(t, "ETH", res.Liquidated[0].Symbol)
	assert.True(t, res.Liquidated[0].Price.Equal(d("2000")))
	assert.True(t, res.Cash.Equal(d("7500")))

	_, ok := h.position(t, "alice", "ETH")
	assert.False(t, ok)
	_, ok = h.position(t, "alice", "BTC")
	assert.True(t, ok)
	assert.Len(t, h.history(t, "alice"), 3)
}

func TestCopyTradeAllOrNothing(t *testing.T) {
	forEachStore(t, func(t *testing.T, kind string) {
		for _, mode := range []ledger.CopyMode{ledger.Merge, ledger.Replace} {
			t.Run(mode.String(), func(t *testing.T) {
				h := newHarnessOn(t, kind, map[string]string{"BTC-USD": "50000", "ETH-USD": "2000"}, "alice", "bob")
				ctx := context.Background()

				_, err := h.engine.ExecuteBuy(ctx, "bob", "BTC", d("0.19"), ledger.Units)
				require.NoError(t, err)
				_, err = h.engine.ExecuteBuy(ctx, "alice", "ETH", d("1"), ledger.Units)
				require.NoError(t, err)
				h.prices.Set("BTC-USD", d("60000"))

				_, err = h.engine.ExecuteCopyTrade(ctx, "alice", "bob", mode)
				require.ErrorIs(t, err, ledger.ErrInsufficientFunds)

				assert.True(t, h.cash(t, "alice").Equal(d("8000")))
				eth, ok := h.position(t, "alice", "ETH")
				require.True(t, ok)
				assert.True(t, eth.Quantity.Equal(d("1")))
				_, ok = h.position(t, "alice", "BTC")
				assert.False(t, ok)
				assert.Len(t, h.history(t, "alice"), 1)
			})
		}
	})
}

func TestCopyTradeInvalidSource(t *testing.T) {
	h := copyHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		source string
	}{
		{"self", "alice"},
		{"empty id", ""},
		{"missing account", "nobody"},
		{"no positions", "carol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.ExecuteCopyTrade(ctx, "alice", tt.source, ledger.Merge)
			assert.ErrorIs(t, err, ledger.ErrInvalidCopySource)
			_, err = h.engine.PreviewCopyTrade(ctx, "alice", tt.source)
			assert.ErrorIs(t, err, ledger.ErrInvalidCopySource)
		})
	}

	_, err := h.engine.ExecuteCopyTrade(ctx, "nobody", "bob", ledger.Merge)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestCopyTradeFallsBackToAverageCost(t *testing.T) {
	h := copyHarness(t)
	h.prices.Delete("BTC-USD")

	p, err := h.engine.PreviewCopyTrade(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, p.Orders, 1)
	assert.False(t, p.Orders[0].Live)
	assert.True(t, p.Orders[0].Price.Equal(d("50000")))
}

func TestPreviewCopyTrade(t *testing.T) {
	h := copyHarness(t)
	ctx := context.Background()

	_, err := h.engine.ExecuteBuy(ctx, "bob", "ETH", d("3"), ledger.Units)
	require.NoError(t, err)

	p, err := h.engine.PreviewCopyTrade(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Source)
	require.Len(t, p.Orders, 2)
	assert.True(t, p.Orders[0].Live)
	assert.True(t, p.TotalCost.Equal(d("8500")))
	assert.True(t, p.Cash.Equal(d("8000")))
	assert.True(t, p.LiquidationValue.Equal(d("2000")))
	assert.False(t, p.CanMerge)
	assert.True(t, p.CanReplace)

	// previews change nothing
	assert.Len(t, h.history(t, "alice"), 1)
}
