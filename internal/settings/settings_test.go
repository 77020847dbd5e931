package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitivityPresets(t *testing.T) {
	low, err := FromSensitivityLevel(SensitivityLow)
	require.NoError(t, err)
	assert.Equal(t, 0.80, low.SimilarityThreshold)
	assert.Equal(t, 0.92, low.HighConfidenceThreshold)
	assert.Equal(t, 2, low.NgramMin)
	assert.Equal(t, 4, low.NgramMax)
	assert.True(t, low.RequireMultipleMatches)

	medium, err := FromSensitivityLevel(SensitivityMedium)
	require.NoError(t, err)
	assert.Equal(t, DefaultSimilarityConfig(), medium)

	high, err := FromSensitivityLevel(SensitivityHigh)
	require.NoError(t, err)
	assert.Equal(t, 0.50, high.SimilarityThreshold)
	assert.Equal(t, 0.75, high.HighConfidenceThreshold)
	assert.False(t, high.RequireMultipleMatches)

	_, err = FromSensitivityLevel("paranoid")
	assert.Error(t, err)
}

func TestSimilarityValidateTierOrdering(t *testing.T) {
	cfg := DefaultSimilarityConfig()
	require.NoError(t, cfg.Validate())

	cfg.HighConfidenceThreshold = cfg.SimilarityThreshold - 0.1
	assert.Error(t, cfg.Validate())

	cfg = DefaultSimilarityConfig()
	cfg.ExactMatchThreshold = cfg.HighConfidenceThreshold - 0.1
	assert.Error(t, cfg.Validate())

	cfg = DefaultSimilarityConfig()
	cfg.NgramMin = 3
	cfg.NgramMax = 2
	assert.Error(t, cfg.Validate())
}

func TestSimilarityUpdateMovesToCustom(t *testing.T) {
	store := &SimilarityStore{config: DefaultSimilarityConfig()}

	threshold := 0.70
	cfg, err := store.Update(SimilarityUpdate{SimilarityThreshold: &threshold})
	require.NoError(t, err)
	assert.Equal(t, SensitivityCustom, cfg.SensitivityLevel)
	assert.Equal(t, 0.70, cfg.SimilarityThreshold)
}

func TestSimilarityUpdateNonThresholdKeepsLevel(t *testing.T) {
	store := &SimilarityStore{config: DefaultSimilarityConfig()}

	n := 4096
	cfg, err := store.Update(SimilarityUpdate{NFeatures: &n})
	require.NoError(t, err)
	assert.Equal(t, SensitivityMedium, cfg.SensitivityLevel)
	assert.Equal(t, 4096, cfg.NFeatures)
}

func TestSimilarityUpdateRejectsInvalidAndKeepsActive(t *testing.T) {
	store := &SimilarityStore{config: DefaultSimilarityConfig()}

	bad := 1.5
	_, err := store.Update(SimilarityUpdate{SimilarityThreshold: &bad})
	require.Error(t, err)
	assert.Equal(t, DefaultSimilarityConfig(), store.Get())
}

func TestSimilarityReset(t *testing.T) {
	store := &SimilarityStore{config: DefaultSimilarityConfig()}
	threshold := 0.9
	_, err := store.Update(SimilarityUpdate{SimilarityThreshold: &threshold})
	require.NoError(t, err)

	assert.Equal(t, DefaultSimilarityConfig(), store.Reset())
}

func TestIgnoreStoreMatching(t *testing.T) {
	store := NewIgnoreStore([]string{"*.tmp", ".DS_Store", "~$*"})

	assert.True(t, store.ShouldIgnore("/data/docs/draft.tmp"))
	assert.True(t, store.ShouldIgnore("/data/docs/.DS_Store"))
	assert.True(t, store.ShouldIgnore("/data/docs/.ds_store"))
	assert.True(t, store.ShouldIgnore("/data/docs/~$report.docx"))
	assert.False(t, store.ShouldIgnore("/data/docs/report.docx"))
	assert.False(t, store.ShouldIgnore("/data/tmp.d/notes.txt"))
}

func TestIgnoreStoreAddRemove(t *testing.T) {
	store := NewIgnoreStore(nil)

	patterns, err := store.Add("*.bak")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.bak"}, patterns)

	// Duplicate adds are idempotent.
	patterns, err = store.Add("*.bak")
	require.NoError(t, err)
	assert.Equal(t, []string{"*.bak"}, patterns)

	_, err = store.Add("  ")
	assert.Error(t, err)

	_, err = store.Add("[unclosed")
	assert.Error(t, err)

	patterns, removed := store.Remove("*.bak")
	assert.True(t, removed)
	assert.Empty(t, patterns)

	_, removed = store.Remove("*.bak")
	assert.False(t, removed)
}

func TestIgnoreStoreSetDropsEmpty(t *testing.T) {
	store := NewIgnoreStore(nil)
	patterns := store.Set([]string{" *.log ", "", "  "})
	assert.Equal(t, []string{"*.log"}, patterns)
}

func TestThreadingValidate(t *testing.T) {
	assert.NoError(t, ThreadingSettings{Enabled: true, MaxWorkers: 4, BatchSize: 50}.Validate())
	assert.Error(t, ThreadingSettings{MaxWorkers: 0, BatchSize: 50}.Validate())
	assert.Error(t, ThreadingSettings{MaxWorkers: 4, BatchSize: 0}.Validate())
}

func TestStorageSettingsValidate(t *testing.T) {
	assert.NoError(t, StorageSettings{Backend: BackendSQLite}.Validate())
	assert.Error(t, StorageSettings{Backend: "mongo"}.Validate())

	redis := StorageSettings{Backend: BackendRedis, Redis: RedisSettings{Host: "localhost", Port: 6379}}
	assert.NoError(t, redis.Validate())

	redis.Redis.Host = ""
	assert.Error(t, redis.Validate())

	redis.Redis.Host = "localhost"
	redis.Redis.Port = 0
	assert.Error(t, redis.Validate())
}
