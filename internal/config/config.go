// Package config loads static startup configuration (database DSNs, provider
// credentials, pipeline tuning defaults) and serves mutable runtime settings
// (ai-config, privacy filter, prompts, dashboard tuning) through a TTL-cached
// resolver backed by the app_config table.
package config

import "time"

// ObsConfig configures the OTel tracing/metrics bootstrap in observability.InitOTel.
type ObsConfig struct {
	OTLP           string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// PostgresConfig configures the primary event/score/finding store.
type PostgresConfig struct {
	DSN          string
	MaxConns     int32
	MinConns     int32
	QueryTimeout time.Duration
}

// ClickHouseConfig configures the external event-store backend used for
// MonitoredSystems with EventSource == "external".
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// RedisConfig configures the template score cache and pipeline backpressure state.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AnthropicConfig configures the primary LLM provider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIConfig configures the secondary LLM provider.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// GoogleConfig configures the tertiary (Gemini) LLM provider.
type GoogleConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// LLMConfig aggregates all provider configs plus adapter-wide tuning.
type LLMConfig struct {
	Anthropic AnthropicConfig
	OpenAI    OpenAIConfig
	Google    GoogleConfig
	// Provider selects the active primary provider: "anthropic" | "openai" | "google".
	Provider string
	// RequestTimeout bounds a single scoreBatch/metaAnalyze call.
	RequestTimeout time.Duration
	// MaxRetries caps capped-exponential-backoff retries on transient transport/5xx errors.
	MaxRetries int
	// RetryBaseDelay is the first backoff delay; later attempts double it.
	RetryBaseDelay time.Duration
}

// S3Config configures the optional object-storage backup upload target.
type S3Config struct {
	Enabled               bool
	Bucket                string
	Region                string
	Prefix                string
	Endpoint              string // non-empty selects an S3-compatible endpoint (e.g. MinIO)
	AccessKey             string
	SecretKey             string
	UsePathStyle          bool // required by most non-AWS S3-compatible services (e.g. MinIO)
	TLSInsecureSkipVerify bool
	SSE                   S3SSEConfig
}

// S3SSEConfig configures server-side encryption for uploaded backup objects.
type S3SSEConfig struct {
	Mode     string // "" | "sse-s3" | "sse-kms"
	KMSKeyID string
}

// OIDCConfig configures bearer-token verification for state-mutating HTTP endpoints.
type OIDCConfig struct {
	IssuerURL string
	ClientID  string
	// Disabled skips verification entirely; intended for local development only.
	Disabled bool
}

// KafkaConfig configures the ingest bridge consuming external log producers.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// PipelineConfig holds the scoring/meta-analysis tuning knobs from spec §4.
type PipelineConfig struct {
	IntervalMinutes               int
	ScoringLimitPerRun            int
	ScoringBatchSize              int
	MaxParallelSystems            int
	WindowMinutes                 int
	MetaMaxEvents                 int
	ContextWindowSize             int
	ScoreCacheTTLMinutes          int
	LowScoreThreshold             float64
	LowScoreMinScorings           int
	EffectiveScoreMetaWeight      float64
	ScoreDisplayWindowDays        int
	FindingDedupThreshold         float64
	SeverityDecayAfterOccurrences int
	RecurringLookbackDays         int
	MaxNewFindingsPerWindow       int
	MaxOpenFindingsPerSystem      int
	AutoResolveAfterMisses        int
	MessageMaxLength              int
	FilterZeroScoreMetaEvents     bool
	MetaPrioritizeHighScores      bool
	SkipZeroScoreMeta             bool
	FindingDedupEnabled           bool
	SeverityDecayEnabled          bool
	// SeverityFilterEnabled, when true, assigns score=0 without an LLM call to
	// events whose severity is in SeveritySkipList.
	SeverityFilterEnabled bool
	SeveritySkipList      []string
}

// MaintenanceConfig holds retention/backup tuning.
type MaintenanceConfig struct {
	IntervalHours        int
	DefaultRetentionDays int
	BackupEnabled        bool
	BackupIntervalHours  int
	BackupFormat         string // "custom" | "plain"
	BackupRetentionCount int
	BackupDir            string
	PgDumpPath           string
}

// HTTPConfig configures the JSON API server.
type HTTPConfig struct {
	Addr string
}

// Config is the complete static configuration for one server process.
type Config struct {
	Postgres    PostgresConfig
	ClickHouse  ClickHouseConfig
	Redis       RedisConfig
	LLM         LLMConfig
	S3          S3Config
	OIDC        OIDCConfig
	Kafka       KafkaConfig
	Pipeline    PipelineConfig
	Maintenance MaintenanceConfig
	HTTP        HTTPConfig
	Obs         ObsConfig
}

// defaults applies spec §4's documented defaults for every pipeline/maintenance
// knob that wasn't set via environment override.
func defaults() Config {
	return Config{
		Pipeline: PipelineConfig{
			IntervalMinutes:               5,
			ScoringLimitPerRun:            500,
			ScoringBatchSize:              20,
			MaxParallelSystems:            4,
			WindowMinutes:                 5,
			MetaMaxEvents:                 200,
			ContextWindowSize:             5,
			ScoreCacheTTLMinutes:          60,
			LowScoreThreshold:             0.2,
			LowScoreMinScorings:           5,
			EffectiveScoreMetaWeight:      0.7,
			ScoreDisplayWindowDays:        7,
			FindingDedupThreshold:         0.6,
			SeverityDecayAfterOccurrences: 3,
			RecurringLookbackDays:         14,
			MaxNewFindingsPerWindow:       3,
			MaxOpenFindingsPerSystem:      50,
			AutoResolveAfterMisses:        5,
			MessageMaxLength:              512,
			FilterZeroScoreMetaEvents:     true,
			SkipZeroScoreMeta:             true,
			FindingDedupEnabled:           true,
			SeverityDecayEnabled:          true,
			SeverityFilterEnabled:         true,
			SeveritySkipList:              []string{"debug", "info"},
		},
		Maintenance: MaintenanceConfig{
			IntervalHours:        6,
			DefaultRetentionDays: 90,
			BackupEnabled:        true,
			BackupIntervalHours:  24,
			BackupFormat:         "custom",
			BackupRetentionCount: 7,
			BackupDir:            "./backups",
			PgDumpPath:           "pg_dump",
		},
		LLM: LLMConfig{
			Provider:       "anthropic",
			RequestTimeout: 60 * time.Second,
			MaxRetries:     2,
			RetryBaseDelay: 500 * time.Millisecond,
		},
		Postgres: PostgresConfig{
			MaxConns:     10,
			MinConns:     2,
			QueryTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{Addr: ":8080"},
		Obs: ObsConfig{
			ServiceName:    "log-insight-platform",
			ServiceVersion: "dev",
			Environment:    "development",
		},
	}
}
