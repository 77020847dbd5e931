package settings

import (
	"fmt"
	"sync"

	"github.com/docsentry/backend/pkg/config"
)

const (
	SensitivityLow    = "low"
	SensitivityMedium = "medium"
	SensitivityHigh   = "high"
	SensitivityCustom = "custom"
)

// SimilarityConfig drives vectorization and match classification. Operations
// snapshot it at start time; mutations only affect operations started later.
type SimilarityConfig struct {
	SensitivityLevel        string  `json:"sensitivity_level"`
	SimilarityThreshold     float64 `json:"similarity_threshold"`
	HighConfidenceThreshold float64 `json:"high_confidence_threshold"`
	ExactMatchThreshold     float64 `json:"exact_match_threshold"`
	NFeatures               int     `json:"n_features"`
	NgramMin                int     `json:"ngram_range_min"`
	NgramMax                int     `json:"ngram_range_max"`
	UseIDF                  bool    `json:"use_idf"`
	SublinearTF             bool    `json:"sublinear_tf"`
	MaxDF                   float64 `json:"max_df"`
	MinDF                   int     `json:"min_df"`
	RequireMultipleMatches  bool    `json:"require_multiple_matches"`
	MinContentLength        int     `json:"min_content_length"`
}

// SimilarityUpdate is a partial update; nil fields are left untouched.
// Manually changing a threshold moves the sensitivity level to custom.
type SimilarityUpdate struct {
	SimilarityThreshold     *float64 `json:"similarity_threshold"`
	HighConfidenceThreshold *float64 `json:"high_confidence_threshold"`
	ExactMatchThreshold     *float64 `json:"exact_match_threshold"`
	NFeatures               *int     `json:"n_features"`
	NgramMin                *int     `json:"ngram_range_min"`
	NgramMax                *int     `json:"ngram_range_max"`
	UseIDF                  *bool    `json:"use_idf"`
	SublinearTF             *bool    `json:"sublinear_tf"`
	MaxDF                   *float64 `json:"max_df"`
	MinDF                   *int     `json:"min_df"`
	RequireMultipleMatches  *bool    `json:"require_multiple_matches"`
	MinContentLength        *int     `json:"min_content_length"`
}

func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		SensitivityLevel:        SensitivityMedium,
		SimilarityThreshold:     0.65,
		HighConfidenceThreshold: 0.85,
		ExactMatchThreshold:     0.98,
		NFeatures:               8192,
		NgramMin:                1,
		NgramMax:                3,
		UseIDF:                  true,
		SublinearTF:             true,
		MaxDF:                   0.95,
		MinDF:                   1,
		RequireMultipleMatches:  true,
		MinContentLength:        50,
	}
}

// FromSensitivityLevel maps a named preset to its threshold bundle.
func FromSensitivityLevel(level string) (SimilarityConfig, error) {
	cfg := DefaultSimilarityConfig()
	switch level {
	case SensitivityLow:
		cfg.SensitivityLevel = SensitivityLow
		cfg.SimilarityThreshold = 0.80
		cfg.HighConfidenceThreshold = 0.92
		cfg.RequireMultipleMatches = true
		cfg.NgramMin = 2
		cfg.NgramMax = 4
	case SensitivityHigh:
		cfg.SensitivityLevel = SensitivityHigh
		cfg.SimilarityThreshold = 0.50
		cfg.HighConfidenceThreshold = 0.75
		cfg.RequireMultipleMatches = false
		cfg.NgramMin = 1
		cfg.NgramMax = 2
	case SensitivityMedium:
	case SensitivityCustom:
		cfg.SensitivityLevel = SensitivityCustom
	default:
		return cfg, fmt.Errorf("unknown sensitivity level: %q", level)
	}
	return cfg, nil
}

// Validate rejects configs that would break the tier ordering or the
// vectorizer. Rejected configs never replace the active one.
func (c SimilarityConfig) Validate() error {
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in (0,1], got %v", c.SimilarityThreshold)
	}
	if c.HighConfidenceThreshold < c.SimilarityThreshold {
		return fmt.Errorf("high_confidence_threshold %v below similarity_threshold %v",
			c.HighConfidenceThreshold, c.SimilarityThreshold)
	}
	if c.ExactMatchThreshold < c.HighConfidenceThreshold || c.ExactMatchThreshold > 1 {
		return fmt.Errorf("exact_match_threshold %v must be in [high_confidence_threshold, 1]",
			c.ExactMatchThreshold)
	}
	if c.NgramMin < 1 || c.NgramMax < c.NgramMin {
		return fmt.Errorf("invalid ngram range [%d,%d]", c.NgramMin, c.NgramMax)
	}
	if c.NFeatures < 1 {
		return fmt.Errorf("n_features must be positive, got %d", c.NFeatures)
	}
	if c.MaxDF <= 0 || c.MaxDF > 1 {
		return fmt.Errorf("max_df must be in (0,1], got %v", c.MaxDF)
	}
	if c.MinDF < 1 {
		return fmt.Errorf("min_df must be at least 1, got %d", c.MinDF)
	}
	if c.MinContentLength < 0 {
		return fmt.Errorf("min_content_length must not be negative, got %d", c.MinContentLength)
	}
	return nil
}

// SimilarityStore is the process-wide owner of the similarity configuration.
type SimilarityStore struct {
	mu     sync.RWMutex
	config SimilarityConfig
}

func NewSimilarityStore(seed config.SimilarityConfig) *SimilarityStore {
	cfg := SimilarityConfig{
		SensitivityLevel:        seed.SensitivityLevel,
		SimilarityThreshold:     seed.SimilarityThreshold,
		HighConfidenceThreshold: seed.HighConfidenceThreshold,
		ExactMatchThreshold:     seed.ExactMatchThreshold,
		NFeatures:               seed.NFeatures,
		NgramMin:                seed.NgramMin,
		NgramMax:                seed.NgramMax,
		UseIDF:                  seed.UseIDF,
		SublinearTF:             seed.SublinearTF,
		MaxDF:                   seed.MaxDF,
		MinDF:                   seed.MinDF,
		RequireMultipleMatches:  seed.RequireMultipleMatches,
		MinContentLength:        seed.MinContentLength,
	}
	if cfg.Validate() != nil {
		cfg = DefaultSimilarityConfig()
	}
	return &SimilarityStore{config: cfg}
}

func (s *SimilarityStore) Get() SimilarityConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

func (s *SimilarityStore) Update(update SimilarityUpdate) (SimilarityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.config
	thresholdChanged := false

	if update.SimilarityThreshold != nil {
		next.SimilarityThreshold = *update.SimilarityThreshold
		thresholdChanged = true
	}
	if update.HighConfidenceThreshold != nil {
		next.HighConfidenceThreshold = *update.HighConfidenceThreshold
		thresholdChanged = true
	}
	if update.ExactMatchThreshold != nil {
		next.ExactMatchThreshold = *update.ExactMatchThreshold
		thresholdChanged = true
	}
	if update.NFeatures != nil {
		next.NFeatures = *update.NFeatures
	}
	if update.NgramMin != nil {
		next.NgramMin = *update.NgramMin
	}
	if update.NgramMax != nil {
		next.NgramMax = *update.NgramMax
	}
	if update.UseIDF != nil {
		next.UseIDF = *update.UseIDF
	}
	if update.SublinearTF != nil {
		next.SublinearTF = *update.SublinearTF
	}
	if update.MaxDF != nil {
		next.MaxDF = *update.MaxDF
	}
	if update.MinDF != nil {
		next.MinDF = *update.MinDF
	}
	if update.RequireMultipleMatches != nil {
		next.RequireMultipleMatches = *update.RequireMultipleMatches
	}
	if update.MinContentLength != nil {
		next.MinContentLength = *update.MinContentLength
	}
	if thresholdChanged {
		next.SensitivityLevel = SensitivityCustom
	}

	if err := next.Validate(); err != nil {
		return s.config, err
	}
	s.config = next
	return s.config, nil
}

func (s *SimilarityStore) ApplyPreset(level string) (SimilarityConfig, error) {
	cfg, err := FromSensitivityLevel(level)
	if err != nil {
		return s.Get(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return s.config, nil
}

func (s *SimilarityStore) Reset() SimilarityConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = DefaultSimilarityConfig()
	return s.config
}
