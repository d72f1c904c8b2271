package agent

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerAppendStampsTime(t *testing.T) {
	led := NewLedger()
	led.Append(Entry{Kind: EntryNavigation, Status: StatusSuccess})

	entries := led.Entries()
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestLedgerAppendKeepsExplicitTime(t *testing.T) {
	led := NewLedger()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	led.Append(Entry{Kind: EntryAction, Status: StatusError, Timestamp: ts})

	assert.Equal(t, ts, led.Entries()[0].Timestamp)
}

func TestLedgerRecentWindow(t *testing.T) {
	led := NewLedger()
	for i := 0; i < 8; i++ {
		led.Append(Entry{Kind: EntryAction, Detail: fmt.Sprintf("entry %d", i)})
	}

	recent := led.Recent(HistoryWindow)
	require.Len(t, recent, HistoryWindow)
	assert.Equal(t, "entry 3", recent[0].Detail)
	assert.Equal(t, "entry 7", recent[len(recent)-1].Detail)

	assert.Len(t, led.Recent(100), 8)
	assert.Nil(t, led.Recent(0))
	assert.Nil(t, NewLedger().Recent(5))
}

func TestLedgerEntriesReturnsCopy(t *testing.T) {
	led := NewLedger()
	led.Append(Entry{Kind: EntryAction, Detail: "original"})

	snapshot := led.Entries()
	snapshot[0].Detail = "mutated"

	assert.Equal(t, "original", led.Entries()[0].Detail)
}
