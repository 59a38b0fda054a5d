package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrade(id string, closeTime time.Time, profit float64) TradeRecord {
	return TradeRecord{
		ID:             id,
		Symbol:         "EURUSD",
		Side:           "BUY",
		LotSize:        0.1,
		EntryPrice:     1.0852,
		ExitPrice:      1.0900,
		OpenTime:       closeTime.Add(-time.Hour),
		CloseTime:      closeTime,
		Commission:     0.7,
		Swap:           0,
		RealizedProfit: profit,
		Reason:         "Take Profit Hit",
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	require.NoError(t, j.RecordTrade(sampleTrade("a", now.Add(-48*time.Hour), -20)))
	require.NoError(t, j.RecordTrade(sampleTrade("b", now.Add(-time.Hour), 47.3)))
	require.NoError(t, j.RecordTrade(sampleTrade("c", now, 12.5)))

	require.NoError(t, j.RecordEquity(EquitySnapshot{
		Time:          now,
		Balance:       10047.32,
		Equity:        10047.32,
		OpenPositions: 0,
	}))

	since, err := j.TradesClosedSince(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	require.Len(t, since, 2)

	assert.Equal(t, "b", since[0].ID)
	assert.Equal(t, "c", since[1].ID)
	assert.InDelta(t, 47.3, since[0].RealizedProfit, 1e-9)
	assert.Equal(t, "Take Profit Hit", since[0].Reason)
	assert.True(t, since[0].CloseTime.Equal(now.Add(-time.Hour)))
}

func TestSQLiteDuplicateTradeIDFails(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	defer j.Close()

	now := time.Now().UTC()
	require.NoError(t, j.RecordTrade(sampleTrade("dup", now, 1)))
	assert.Error(t, j.RecordTrade(sampleTrade("dup", now, 2)))
}
