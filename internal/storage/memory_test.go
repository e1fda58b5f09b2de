package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/pondvision/internal/model"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	rec := &model.UploadRecord{ID: "u1", Name: "fish.png", Status: model.StatusUploaded}
	store.Save(rec)

	require.NoError(t, store.UpdateProgress("u1", "Calibrating gill sensors...", 20))
	got, err := store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAnalyzing, got.Status)
	assert.Equal(t, 20, got.Progress)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, store.Complete("u1", "v1"))
	got, err = store.Get("u1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Equal(t, "v1", got.VerdictID)
	assert.Empty(t, got.Stage)

	got.Status = model.StatusFailed
	again, _ := store.Get("u1")
	assert.Equal(t, model.StatusComplete, again.Status, "Get must return a copy")
}

func TestMemoryStoreMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.UpdateStatus("nope", model.StatusFailed, "x"), ErrNotFound)
	assert.ErrorIs(t, store.Complete("nope", "v"), ErrNotFound)
}

func TestVerdictSlotSnapshots(t *testing.T) {
	slot := NewVerdictSlot()
	_, ok := slot.Current()
	assert.False(t, ok)

	first := verdict.Verdict{ID: "v1", Media: verdict.Media{Image: []byte{1, 2, 3}}}
	slot.Store(first)
	first.Media.Image[0] = 42

	snap, ok := slot.Current()
	require.True(t, ok)
	assert.Equal(t, "v1", snap.ID)
	assert.Equal(t, byte(1), snap.Media.Image[0], "slot must not alias the stored value")

	slot.Store(verdict.Verdict{ID: "v2"})
	assert.Equal(t, "v1", snap.ID, "earlier snapshot stays intact")
	latest, _ := slot.Current()
	assert.Equal(t, "v2", latest.ID)
}

func TestVerdictSlotConcurrentAccess(t *testing.T) {
	slot := NewVerdictSlot()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			slot.Store(verdict.Verdict{ID: "w", Status: "complete"})
		}()
		go func() {
			defer wg.Done()
			if v, ok := slot.Current(); ok {
				assert.Equal(t, "complete", v.Status)
			}
		}()
	}
	wg.Wait()
}
