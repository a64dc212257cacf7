package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: EXPERTROUTE_CLASSIFIER__MODEL -> classifier.model.
const EnvPrefix = "EXPERTROUTE_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (EXPERTROUTE_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validProviders = map[ProviderType]bool{
	ProviderAnthropic:  true,
	ProviderOpenAI:     true,
	ProviderOpenRouter: true,
	ProviderOllama:     true,
}

var validQualityTiers = map[QualityTier]bool{
	QualityLite:   true,
	QualityNormal: true,
	QualityMax:    true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if !validProviders[c.Classifier.Provider] {
		return fmt.Errorf("invalid classifier.provider %q: must be one of anthropic, openai, openrouter, ollama", c.Classifier.Provider)
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model is required")
	}
	if c.Classifier.Quality != "" && !validQualityTiers[c.Classifier.Quality] {
		return fmt.Errorf("invalid classifier.quality %q: must be one of lite, normal, max", c.Classifier.Quality)
	}
	if c.Classifier.TimeoutSeconds <= 0 {
		return fmt.Errorf("classifier.timeout_seconds must be positive")
	}
	if c.Classifier.RequestsPerMinute < 0 {
		return fmt.Errorf("classifier.requests_per_minute must be non-negative")
	}

	if c.Synthetic.Enabled {
		if !validProviders[c.Synthetic.Provider] {
			return fmt.Errorf("invalid synthetic.provider %q", c.Synthetic.Provider)
		}
		if c.Synthetic.Model == "" {
			return fmt.Errorf("synthetic.model is required when synthetic responses are enabled")
		}
	}

	if err := c.Matching.validate(); err != nil {
		return err
	}
	if err := c.Lifecycle.validate(); err != nil {
		return err
	}

	if c.Network.MaxDepth < 3 {
		return fmt.Errorf("network.max_depth must be at least 3, got %d", c.Network.MaxDepth)
	}

	if c.Cache.Enabled && c.Cache.RedisAddress == "" {
		return fmt.Errorf("cache.redis_address is required when the cache is enabled")
	}

	if c.Sweep.Enabled {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid sweep.schedule %q: %w", c.Sweep.Schedule, err)
		}
	}

	if c.Bots.Enabled && c.Bots.FeedSize <= 0 {
		return fmt.Errorf("bots.feed_size must be positive")
	}

	if c.Similar.Enabled {
		if c.Similar.Provider != ProviderOpenAI && c.Similar.Provider != ProviderOllama {
			return fmt.Errorf("invalid similar.provider %q: must be openai or ollama", c.Similar.Provider)
		}
		if c.Similar.Model == "" {
			return fmt.Errorf("similar.model is required when similar-question search is enabled")
		}
	}
	if c.Similar.MinSimilarity < 0 || c.Similar.MinSimilarity > 1 {
		return fmt.Errorf("similar.min_similarity must be in [0, 1]")
	}

	return nil
}

func (m MatchingConfig) validate() error {
	w := m.Weights
	for name, v := range map[string]float64{
		"tag_relevance":        w.TagRelevance,
		"expertise_confidence": w.ExpertiseConfidence,
		"response_history":     w.ResponseHistory,
		"activity":             w.Activity,
		"network_distance":     w.NetworkDistance,
	} {
		if v < 0 {
			return fmt.Errorf("matching.weights.%s must be non-negative", name)
		}
	}
	if w.TagRelevance+w.ExpertiseConfidence+w.ResponseHistory+w.Activity+w.NetworkDistance <= 0 {
		return fmt.Errorf("matching.weights must not all be zero")
	}
	if m.ActivityHalfLifeHours <= 0 {
		return fmt.Errorf("matching.activity_half_life_hours must be positive")
	}
	if m.ForwardedDistanceScore <= 0 || m.ForwardedDistanceScore >= 1.0/3.0 {
		return fmt.Errorf("matching.forwarded_distance_score must be in (0, 1/3)")
	}
	if m.Workers < 0 {
		return fmt.Errorf("matching.workers must be non-negative")
	}
	if m.NotifyTopN < 0 {
		return fmt.Errorf("matching.notify_top_n must be non-negative")
	}
	if m.CandidateLimit < 0 {
		return fmt.Errorf("matching.candidate_limit must be non-negative")
	}
	return nil
}

func (l LifecycleConfig) validate() error {
	switch l.AnswerPolicy {
	case AnswerOnFirstResponse, AnswerOnAccept:
	default:
		return fmt.Errorf("invalid lifecycle.answer_policy %q: must be first_response or on_accept", l.AnswerPolicy)
	}
	if l.TitleMinLen < 1 || l.TitleMaxLen < l.TitleMinLen {
		return fmt.Errorf("lifecycle title length bounds are inconsistent")
	}
	if l.BodyMinLen < 1 || l.BodyMaxLen < l.BodyMinLen {
		return fmt.Errorf("lifecycle body length bounds are inconsistent")
	}
	if l.TTLDays <= 0 {
		return fmt.Errorf("lifecycle.ttl_days must be positive")
	}
	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	switch provider {
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	default:
		return ""
	}
}
