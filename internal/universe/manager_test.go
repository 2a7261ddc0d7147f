package universe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/config"
	"github.com/sawpanic/pumpradar/internal/data/exchanges/fake"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

func defaultUniverse() config.UniverseConfig {
	return config.Default().Universe
}

func TestRefreshFiltersDedupesAndKeepsOrder(t *testing.T) {
	src := fake.NewAdapter("SOLUSDT", "BTCUSDT", "btcusdt", "ETHUPUSDT", "BNBDOWNUSDT", "XRPUSDT", "USDCUSDT", "ETHBTC")
	for _, s := range []string{"SOLUSDT", "BTCUSDT", "XRPUSDT"} {
		src.SetTicker(interfaces.Ticker24h{Symbol: s, QuoteVolume: 5_000_000})
	}

	m, err := NewManager(src, src, defaultUniverse(), 4)
	require.NoError(t, err)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"SOLUSDT", "BTCUSDT", "XRPUSDT"}, snap.Symbols)
	assert.Equal(t, 3, snap.Excluded)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, snap.Symbols, m.Symbols())
}

func TestRefreshAppliesLiquidityFloor(t *testing.T) {
	src := fake.NewAdapter("AAAUSDT", "BBBUSDT", "CCCUSDT")
	src.SetTicker(interfaces.Ticker24h{Symbol: "AAAUSDT", QuoteVolume: 2_000_000})
	src.SetTicker(interfaces.Ticker24h{Symbol: "BBBUSDT", QuoteVolume: 10_000})
	src.SetError("CCCUSDT", errors.New("unavailable"))

	m, err := NewManager(src, src, defaultUniverse(), 2)
	require.NoError(t, err)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAUSDT"}, snap.Symbols)
	assert.Equal(t, 2, snap.Illiquid)
}

func TestZeroLiquidityFloorDisablesFilter(t *testing.T) {
	cfg := defaultUniverse()
	cfg.MinQuoteVolume = 0
	src := fake.NewAdapter("AAAUSDT", "BBBUSDT")

	m, err := NewManager(src, src, cfg, 2)
	require.NoError(t, err)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAUSDT", "BBBUSDT"}, snap.Symbols)
	assert.Equal(t, int64(1), src.Calls(), "only the listing call is made")
}

func TestExplicitSymbolsSkipListing(t *testing.T) {
	cfg := defaultUniverse()
	cfg.Symbols = []string{"btcusdt", "ethusdt"}
	cfg.MinQuoteVolume = 0

	m, err := NewManager(nil, nil, cfg, 1)
	require.NoError(t, err)

	snap, err := m.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, snap.Symbols)
}

type failingLister struct{}

func (failingLister) ListSymbols(context.Context, string) ([]string, error) {
	return nil, errors.New("exchange down")
}

func TestFailedRefreshKeepsPreviousSnapshot(t *testing.T) {
	cfg := defaultUniverse()
	cfg.MinQuoteVolume = 0
	src := fake.NewAdapter("AAAUSDT")

	m, err := NewManager(src, nil, cfg, 1)
	require.NoError(t, err)
	_, err = m.Refresh(context.Background())
	require.NoError(t, err)

	m.lister = failingLister{}
	snap, err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"AAAUSDT"}, snap.Symbols)
	assert.Equal(t, 1, m.Snapshot().Version)
}

func TestNewManagerRejectsBadPattern(t *testing.T) {
	cfg := defaultUniverse()
	cfg.Exclude = []string{"[unclosed"}
	_, err := NewManager(fake.NewAdapter(), nil, cfg, 1)
	assert.Error(t, err)
}

func TestExcluded(t *testing.T) {
	m, err := NewManager(fake.NewAdapter(), nil, defaultUniverse(), 1)
	require.NoError(t, err)

	assert.True(t, m.Excluded("ETHUPUSDT"))
	assert.True(t, m.Excluded("BTCBEARUSDT"))
	assert.True(t, m.Excluded("BTC3LUSDT"))
	assert.True(t, m.Excluded("FDUSDUSDT"))
	assert.False(t, m.Excluded("SUPERUSDT"))
	assert.False(t, m.Excluded("BTCUSDT"))
}
