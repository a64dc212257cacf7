package config

import "github.com/ziadkadry99/expertroute/internal/logger"

// QualityPreset describes the classifier model to use for a given quality tier.
type QualityPreset struct {
	Model string
}

// qualityPresets maps each provider+quality combination to its model choice.
var qualityPresets = map[ProviderType]map[QualityTier]QualityPreset{
	ProviderAnthropic: {
		QualityLite:   {Model: "claude-haiku-4-5-20251001"},
		QualityNormal: {Model: "claude-sonnet-4-5-20250929"},
		QualityMax:    {Model: "claude-opus-4-6"},
	},
	ProviderOpenAI: {
		QualityLite:   {Model: "gpt-4o-mini"},
		QualityNormal: {Model: "gpt-4o"},
		QualityMax:    {Model: "gpt-4"},
	},
	ProviderOpenRouter: {
		QualityLite:   {Model: "minimax/minimax-m2.5"},
		QualityNormal: {Model: "minimax/minimax-m2.5"},
		QualityMax:    {Model: "anthropic/claude-sonnet-4.5"},
	},
	ProviderOllama: {
		QualityLite:   {Model: "llama3"},
		QualityNormal: {Model: "llama3"},
		QualityMax:    {Model: "llama3:70b"},
	},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "data/expertroute.db"},
		Server:   ServerConfig{Port: 8080},
		Log:      logger.Config{Level: "info"},
		Classifier: ClassifierConfig{
			Provider:          ProviderAnthropic,
			Model:             "claude-haiku-4-5-20251001",
			Quality:           QualityLite,
			TimeoutSeconds:    10,
			RequestsPerMinute: 60,
		},
		Synthetic: SyntheticConfig{
			Enabled:  false,
			Provider: ProviderAnthropic,
			Model:    "claude-haiku-4-5-20251001",
		},
		Matching: MatchingConfig{
			Weights: WeightsConfig{
				TagRelevance:        0.35,
				ExpertiseConfidence: 0.20,
				ResponseHistory:     0.15,
				Activity:            0.15,
				NetworkDistance:     0.15,
			},
			ActivityHalfLifeHours:  168,
			ForwardedDistanceScore: 0.1,
			MinScore:               0,
			Workers:                4,
			NotifyTopN:             5,
			CandidateLimit:         500,
		},
		Lifecycle: LifecycleConfig{
			AnswerPolicy: AnswerOnFirstResponse,
			TitleMinLen:  5,
			TitleMaxLen:  200,
			BodyMinLen:   10,
			BodyMaxLen:   5000,
			TTLDays:      30,
		},
		Network: NetworkConfig{MaxDepth: 6},
		Cache: CacheConfig{
			Enabled:      false,
			RedisAddress: "localhost:6379",
			TTLSeconds:   300,
		},
		Sweep: SweepConfig{
			Enabled:  true,
			Schedule: "*/15 * * * *",
			Limit:    200,
		},
		Bots: BotsConfig{FeedSize: 5},
		Similar: SimilarConfig{
			Provider:      ProviderOpenAI,
			Model:         "text-embedding-3-small",
			Dimensions:    768,
			IndexPath:     "data/similar.gob.gz",
			MinSimilarity: 0.75,
		},
	}
}

// GetPreset returns the quality preset for the given provider and tier.
// Returns the Lite Anthropic preset if the combination is not found.
func GetPreset(provider ProviderType, tier QualityTier) QualityPreset {
	if tiers, ok := qualityPresets[provider]; ok {
		if p, ok := tiers[tier]; ok {
			return p
		}
	}
	return qualityPresets[ProviderAnthropic][QualityLite]
}
