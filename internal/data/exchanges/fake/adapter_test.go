package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

func TestScriptedCandlesAreTrimmedToLimit(t *testing.T) {
	a := NewAdapter("AAAUSDT")
	series := make([]interfaces.Candle, 10)
	for i := range series {
		series[i] = interfaces.Candle{Close: float64(i)}
	}
	a.SetCandles("AAAUSDT", "5m", series)

	got, err := a.GetCandles(context.Background(), "aaausdt", "5m", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 7.0, got[0].Close)
	assert.Equal(t, 9.0, got[2].Close)
	assert.Equal(t, int64(1), a.Calls())
}

func TestGeneratedDataIsDeterministic(t *testing.T) {
	a := NewGeneratingAdapter("BTCUSDT")
	b := NewGeneratingAdapter("BTCUSDT")

	x, err := a.GetCandles(context.Background(), "BTCUSDT", "1h", 50)
	require.NoError(t, err)
	y, err := b.GetCandles(context.Background(), "BTCUSDT", "1h", 50)
	require.NoError(t, err)

	require.Len(t, x, 50)
	assert.Equal(t, x, y)
	for _, c := range x {
		assert.GreaterOrEqual(t, c.High, c.Low)
		assert.Greater(t, c.Volume, 0.0)
	}
}

func TestSetError(t *testing.T) {
	a := NewAdapter()
	boom := errors.New("boom")
	a.SetError("XUSDT", boom)

	_, err := a.GetCandles(context.Background(), "XUSDT", "5m", 5)
	assert.ErrorIs(t, err, boom)

	a.SetError("XUSDT", nil)
	_, err = a.GetCandles(context.Background(), "XUSDT", "5m", 5)
	assert.NoError(t, err)
}

func TestListSymbolsByQuote(t *testing.T) {
	a := NewAdapter("BTCUSDT", "ETHBTC", "SOLUSDT")
	got, err := a.ListSymbols(context.Background(), "USDT")
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, got)
}
