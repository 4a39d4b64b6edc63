package checkpoint_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/covbatch/internal/checkpoint"
	"github.com/signalnine/covbatch/internal/job"
)

func TestStateSetsAreDisjoint(t *testing.T) {
	st := checkpoint.New()
	st.MarkFailed("Lang-1-gpt")
	st.MarkCompleted("Lang-1-gpt")
	assert.True(t, st.IsCompleted("Lang-1-gpt"))
	assert.False(t, st.IsFailed("Lang-1-gpt"))

	st.MarkFailed("Lang-1-gpt")
	assert.False(t, st.IsCompleted("Lang-1-gpt"))
	assert.True(t, st.IsFailed("Lang-1-gpt"))
}

func TestAdvanceIsMonotonic(t *testing.T) {
	st := checkpoint.New()
	st.Advance(5)
	st.Advance(3)
	assert.Equal(t, 5, st.ResumeIndex)
	st.Advance(6)
	assert.Equal(t, 6, st.ResumeIndex)
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "progress.json"))
	st, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, st.Completed)
	assert.Empty(t, st.Failed)
	assert.Zero(t, st.ResumeIndex)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "progress.json")
	store := checkpoint.NewStore(path)

	st := checkpoint.New()
	st.MarkCompleted(job.Key("Jsoup-3-qwen"))
	st.MarkCompleted(job.Key("Lang-1-gpt"))
	st.MarkFailed(job.Key("Math-5-gpt"))
	st.Advance(3)
	require.NoError(t, store.Save(st))

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, st.Completed, got.Completed)
	assert.Equal(t, st.Failed, got.Failed)
	assert.Equal(t, 3, got.ResumeIndex)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadDetectsCorruption(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(string) string
	}{
		{"truncated", func(s string) string { return s[:len(s)/2] }},
		{"tampered index", func(s string) string { return strings.Replace(s, `"last_index": 2`, `"last_index": 9`, 1) }},
		{"garbage", func(string) string { return "\x00\x00\x00" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "progress.json")
			store := checkpoint.NewStore(path)
			st := checkpoint.New()
			st.MarkCompleted("Lang-1-gpt")
			st.Advance(2)
			require.NoError(t, store.Save(st))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, []byte(tt.mutate(string(data))), 0o644))

			_, err = store.Load()
			assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
		})
	}
}

func TestLoadAcceptsLegacyRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	legacy := `{"completed": ["Lang-1-gpt"], "failed": ["Lang-1-gpt", "Math-2-qwen"], "last_index": 4}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	st, err := checkpoint.NewStore(path).Load()
	require.NoError(t, err)
	assert.True(t, st.IsCompleted("Lang-1-gpt"))
	assert.False(t, st.IsFailed("Lang-1-gpt"))
	assert.True(t, st.IsFailed("Math-2-qwen"))
	assert.Equal(t, 4, st.ResumeIndex)
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.json")
	store := checkpoint.NewStore(path)
	require.NoError(t, store.Remove())
	require.NoError(t, store.Save(checkpoint.New()))
	require.NoError(t, store.Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
