package config

import "github.com/ziadkadry99/expertroute/internal/logger"

// QualityTier selects the model preset used for classification.
type QualityTier string

const (
	QualityLite   QualityTier = "lite"
	QualityNormal QualityTier = "normal"
	QualityMax    QualityTier = "max"
)

// ProviderType identifies an LLM provider.
type ProviderType string

const (
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenAI     ProviderType = "openai"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderOllama     ProviderType = "ollama"
)

// AnswerPolicy decides when a question moves from active to answered.
type AnswerPolicy string

const (
	// AnswerOnFirstResponse accepts the first human response on arrival.
	AnswerOnFirstResponse AnswerPolicy = "first_response"
	// AnswerOnAccept waits for the asker to accept a response explicitly.
	AnswerOnAccept AnswerPolicy = "on_accept"
)

// Config is the top-level expertroute configuration, corresponding to .expertroute.yml.
type Config struct {
	Database   DatabaseConfig   `yaml:"database" koanf:"database"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Log        logger.Config    `yaml:"log" koanf:"log"`
	Classifier ClassifierConfig `yaml:"classifier" koanf:"classifier"`
	Synthetic  SyntheticConfig  `yaml:"synthetic" koanf:"synthetic"`
	Matching   MatchingConfig   `yaml:"matching" koanf:"matching"`
	Lifecycle  LifecycleConfig  `yaml:"lifecycle" koanf:"lifecycle"`
	Network    NetworkConfig    `yaml:"network" koanf:"network"`
	Cache      CacheConfig      `yaml:"cache" koanf:"cache"`
	Sweep      SweepConfig      `yaml:"sweep" koanf:"sweep"`
	Bots       BotsConfig       `yaml:"bots" koanf:"bots"`
	Similar    SimilarConfig    `yaml:"similar" koanf:"similar"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

type ServerConfig struct {
	Port            int  `yaml:"port" koanf:"port"`
	AllowAllOrigins bool `yaml:"allow_all_origins" koanf:"allow_all_origins"`
}

// ClassifierConfig configures the natural-language classification service.
type ClassifierConfig struct {
	Provider          ProviderType `yaml:"provider" koanf:"provider"`
	Model             string       `yaml:"model" koanf:"model"`
	BaseURL           string       `yaml:"base_url" koanf:"base_url"`
	Quality           QualityTier  `yaml:"quality" koanf:"quality"`
	TimeoutSeconds    int          `yaml:"timeout_seconds" koanf:"timeout_seconds"`
	RequestsPerMinute int          `yaml:"requests_per_minute" koanf:"requests_per_minute"`
}

// SyntheticConfig configures the optional generative-response service.
type SyntheticConfig struct {
	Enabled  bool         `yaml:"enabled" koanf:"enabled"`
	Provider ProviderType `yaml:"provider" koanf:"provider"`
	Model    string       `yaml:"model" koanf:"model"`
	BaseURL  string       `yaml:"base_url" koanf:"base_url"`
}

// WeightsConfig holds the match score component weights.
type WeightsConfig struct {
	TagRelevance        float64 `yaml:"tag_relevance" koanf:"tag_relevance"`
	ExpertiseConfidence float64 `yaml:"expertise_confidence" koanf:"expertise_confidence"`
	ResponseHistory     float64 `yaml:"response_history" koanf:"response_history"`
	Activity            float64 `yaml:"activity" koanf:"activity"`
	NetworkDistance     float64 `yaml:"network_distance" koanf:"network_distance"`
}

type MatchingConfig struct {
	Weights                WeightsConfig `yaml:"weights" koanf:"weights"`
	ActivityHalfLifeHours  float64       `yaml:"activity_half_life_hours" koanf:"activity_half_life_hours"`
	ForwardedDistanceScore float64       `yaml:"forwarded_distance_score" koanf:"forwarded_distance_score"`
	MinScore               float64       `yaml:"min_score" koanf:"min_score"`
	Workers                int           `yaml:"workers" koanf:"workers"`
	NotifyTopN             int           `yaml:"notify_top_n" koanf:"notify_top_n"`
	CandidateLimit         int           `yaml:"candidate_limit" koanf:"candidate_limit"`
}

type LifecycleConfig struct {
	AnswerPolicy AnswerPolicy `yaml:"answer_policy" koanf:"answer_policy"`
	TitleMinLen  int          `yaml:"title_min_len" koanf:"title_min_len"`
	TitleMaxLen  int          `yaml:"title_max_len" koanf:"title_max_len"`
	BodyMinLen   int          `yaml:"body_min_len" koanf:"body_min_len"`
	BodyMaxLen   int          `yaml:"body_max_len" koanf:"body_max_len"`
	TTLDays      int          `yaml:"ttl_days" koanf:"ttl_days"`
}

type NetworkConfig struct {
	MaxDepth int `yaml:"max_depth" koanf:"max_depth"`
}

// CacheConfig configures the Redis-backed candidate pool cache.
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" koanf:"enabled"`
	RedisAddress  string `yaml:"redis_address" koanf:"redis_address"`
	RedisPassword string `yaml:"redis_password" koanf:"redis_password"`
	RedisDB       int    `yaml:"redis_db" koanf:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds" koanf:"ttl_seconds"`
}

// SweepConfig configures the background re-matching job.
type SweepConfig struct {
	Enabled  bool   `yaml:"enabled" koanf:"enabled"`
	Schedule string `yaml:"schedule" koanf:"schedule"`
	Limit    int    `yaml:"limit" koanf:"limit"`
}

// BotsConfig configures the Slack and Teams chat front.
type BotsConfig struct {
	Enabled            bool   `yaml:"enabled" koanf:"enabled"`
	SlackSigningSecret string `yaml:"slack_signing_secret" koanf:"slack_signing_secret"`
	FeedSize           int    `yaml:"feed_size" koanf:"feed_size"`
}

// SimilarConfig configures similar-question search over embeddings.
type SimilarConfig struct {
	Enabled  bool         `yaml:"enabled" koanf:"enabled"`
	Provider ProviderType `yaml:"provider" koanf:"provider"`
	Model    string       `yaml:"model" koanf:"model"`
	BaseURL  string       `yaml:"base_url" koanf:"base_url"`
	// Dimensions is the vector width. OpenAI text-embedding-3 models are
	// shortened to it; Ollama models report it as-is.
	Dimensions int `yaml:"dimensions" koanf:"dimensions"`
	// IndexPath is where the index is saved on shutdown and loaded on
	// startup. Empty keeps it in memory only.
	IndexPath     string  `yaml:"index_path" koanf:"index_path"`
	MinSimilarity float64 `yaml:"min_similarity" koanf:"min_similarity"`
}
