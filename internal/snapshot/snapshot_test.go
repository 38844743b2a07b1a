package snapshot

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finflow/internal/flow"
)

func sampleSnapshot() Snapshot {
	ctx := flow.NewContext()
	ctx.Tx.Account = flow.Account{ID: "acc-1", Name: "Checking", Currency: "EUR"}
	ctx.Tx.Amount = "12.50"
	ctx.Tx.ConvertedAmount = "13.10"
	ctx.Tx.Category = flow.Category{ID: 4, Name: "Groceries"}
	ctx.Tx.Notes = "weekly run"
	ctx.Transfer.SourceAmount = "100"
	ctx.Transfer.SourceFee = "1.5"
	return Snapshot{Screen: flow.ScreenWithdrawalNotes, Context: ctx}
}

func TestScrubDropsInProgressNumericInput(t *testing.T) {
	scrubbed := Scrub(sampleSnapshot())

	require.Empty(t, scrubbed.Context.Tx.Amount)
	require.Empty(t, scrubbed.Context.Tx.ConvertedAmount)
	require.Empty(t, scrubbed.Context.Transfer.SourceAmount)
	require.Empty(t, scrubbed.Context.Transfer.SourceFee)

	// Everything else survives.
	require.Equal(t, "acc-1", scrubbed.Context.Tx.Account.ID)
	require.Equal(t, int64(4), scrubbed.Context.Tx.Category.ID)
	require.Equal(t, "weekly run", scrubbed.Context.Tx.Notes)
	require.Equal(t, flow.ScreenWithdrawalNotes, scrubbed.Screen)
}

func TestSanitizeFallsBackToHome(t *testing.T) {
	for _, screen := range []flow.Screen{
		flow.Screen("withdrawal/bogus"),
		flow.Screen(""),
		flow.ScreenInitializing,
	} {
		snap := Sanitize(Snapshot{Screen: screen})
		require.Equal(t, flow.ScreenHome, snap.Screen, "screen %q", screen)
	}

	snap := Sanitize(Snapshot{Screen: flow.ScreenTransferFees})
	require.Equal(t, flow.ScreenTransferFees, snap.Screen)
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	ctx := context.Background()

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, 7, sampleSnapshot()))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	snap, ok, err := reopened.Load(ctx, 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, flow.ScreenWithdrawalNotes, snap.Screen)
	require.Equal(t, "acc-1", snap.Context.Tx.Account.ID)
	require.Empty(t, snap.Context.Tx.Amount, "amounts are scrubbed on save")

	_, ok, err = reopened.Load(ctx, 8)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	ctx := context.Background()

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, 7, sampleSnapshot()))
	require.NoError(t, s.Delete(ctx, 7))

	_, ok, err := s.Load(ctx, 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreCorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, ok, err := s.Load(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStoreCorruptEntryTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	entries := map[string]json.RawMessage{"7": json.RawMessage(`"scalar"`)}
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, ok, err := s.Load(context.Background(), 7)
	require.NoError(t, err)
	require.False(t, ok)
}
