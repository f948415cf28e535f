package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load builds a Config from defaults, then applies environment overrides.
// Overload semantics match the teacher: .env values win over pre-existing
// process environment, so a checked-in .env deterministically controls local
// runs even when the operator has exported the same variable.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := defaults()

	cfg.Postgres.DSN = strings.TrimSpace(getenv("DATABASE_URL", "POSTGRES_DSN"))
	if v := strings.TrimSpace(getenvOne("POSTGRES_MAX_CONNS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Postgres.MaxConns = int32(n)
		}
	}
	if v := strings.TrimSpace(getenvOne("POSTGRES_MIN_CONNS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Postgres.MinConns = int32(n)
		}
	}

	cfg.ClickHouse.Addr = strings.TrimSpace(getenvOne("CLICKHOUSE_ADDR"))
	cfg.ClickHouse.Database = strings.TrimSpace(getenvOne("CLICKHOUSE_DATABASE"))
	cfg.ClickHouse.Username = strings.TrimSpace(getenvOne("CLICKHOUSE_USERNAME"))
	cfg.ClickHouse.Password = strings.TrimSpace(getenvOne("CLICKHOUSE_PASSWORD"))

	cfg.Redis.Addr = strings.TrimSpace(getenv("REDIS_ADDR", "REDIS_URL"))
	cfg.Redis.Password = strings.TrimSpace(getenvOne("REDIS_PASSWORD"))
	if v := strings.TrimSpace(getenvOne("REDIS_DB")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := strings.TrimSpace(getenvOne("LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	cfg.LLM.Anthropic.APIKey = strings.TrimSpace(getenvOne("ANTHROPIC_API_KEY"))
	cfg.LLM.Anthropic.BaseURL = strings.TrimSpace(getenvOne("ANTHROPIC_BASE_URL"))
	if v := strings.TrimSpace(getenvOne("ANTHROPIC_MODEL")); v != "" {
		cfg.LLM.Anthropic.Model = v
	}
	cfg.LLM.OpenAI.APIKey = strings.TrimSpace(getenv("OPENAI_API_KEY", ""))
	cfg.LLM.OpenAI.BaseURL = strings.TrimSpace(getenv("OPENAI_BASE_URL", "OPENAI_API_BASE_URL"))
	if v := strings.TrimSpace(getenvOne("OPENAI_MODEL")); v != "" {
		cfg.LLM.OpenAI.Model = v
	}
	cfg.LLM.Google.APIKey = strings.TrimSpace(getenvOne("GOOGLE_LLM_API_KEY"))
	if v := strings.TrimSpace(getenvOne("GOOGLE_LLM_MODEL")); v != "" {
		cfg.LLM.Google.Model = v
	}
	if v := strings.TrimSpace(getenvOne("GOOGLE_LLM_BASE_URL")); v != "" {
		cfg.LLM.Google.BaseURL = v
	}
	if v := strings.TrimSpace(getenvOne("LLM_REQUEST_TIMEOUT_SECONDS")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLM.RequestTimeout = time.Duration(n) * time.Second
		}
	}
	if v := strings.TrimSpace(getenvOne("LLM_MAX_RETRIES")); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.LLM.MaxRetries = n
		}
	}

	cfg.S3.Bucket = strings.TrimSpace(getenvOne("BACKUP_S3_BUCKET"))
	cfg.S3.Region = strings.TrimSpace(getenvOne("BACKUP_S3_REGION"))
	cfg.S3.Prefix = strings.TrimSpace(getenvOne("BACKUP_S3_PREFIX"))
	cfg.S3.Endpoint = strings.TrimSpace(getenvOne("BACKUP_S3_ENDPOINT"))
	cfg.S3.AccessKey = strings.TrimSpace(getenvOne("BACKUP_S3_ACCESS_KEY"))
	cfg.S3.SecretKey = strings.TrimSpace(getenvOne("BACKUP_S3_SECRET_KEY"))
	cfg.S3.UsePathStyle = parseBool(getenvOne("BACKUP_S3_USE_PATH_STYLE"))
	cfg.S3.TLSInsecureSkipVerify = parseBool(getenvOne("BACKUP_S3_TLS_INSECURE_SKIP_VERIFY"))
	cfg.S3.Enabled = cfg.S3.Bucket != ""
	cfg.S3.SSE.Mode = strings.TrimSpace(getenvOne("BACKUP_S3_SSE_MODE"))
	cfg.S3.SSE.KMSKeyID = strings.TrimSpace(getenvOne("BACKUP_S3_SSE_KMS_KEY_ID"))

	cfg.OIDC.IssuerURL = strings.TrimSpace(getenvOne("OIDC_ISSUER_URL"))
	cfg.OIDC.ClientID = strings.TrimSpace(getenvOne("OIDC_CLIENT_ID"))
	cfg.OIDC.Disabled = parseBool(getenvOne("OIDC_DISABLED"))

	cfg.Kafka.Topic = strings.TrimSpace(getenvOne("KAFKA_EVENTS_TOPIC"))
	cfg.Kafka.GroupID = strings.TrimSpace(getenvOne("KAFKA_GROUP_ID"))
	if brokers := strings.TrimSpace(getenv("KAFKA_BROKERS", "KAFKA_BOOTSTRAP_SERVERS")); brokers != "" {
		cfg.Kafka.Brokers = splitCSV(brokers)
	}

	applyIntEnv(&cfg.Pipeline.IntervalMinutes, "PIPELINE_INTERVAL_MINUTES")
	applyIntEnv(&cfg.Pipeline.ScoringLimitPerRun, "SCORING_LIMIT_PER_RUN")
	applyIntEnv(&cfg.Pipeline.ScoringBatchSize, "SCORING_BATCH_SIZE")
	applyIntEnv(&cfg.Pipeline.MaxParallelSystems, "MAX_PARALLEL_SYSTEMS")
	applyIntEnv(&cfg.Pipeline.WindowMinutes, "WINDOW_MINUTES")
	applyIntEnv(&cfg.Pipeline.MetaMaxEvents, "META_MAX_EVENTS")
	applyIntEnv(&cfg.Pipeline.ContextWindowSize, "CONTEXT_WINDOW_SIZE")
	applyIntEnv(&cfg.Pipeline.ScoreCacheTTLMinutes, "SCORE_CACHE_TTL_MINUTES")
	applyFloatEnv(&cfg.Pipeline.LowScoreThreshold, "LOW_SCORE_THRESHOLD")
	applyIntEnv(&cfg.Pipeline.LowScoreMinScorings, "LOW_SCORE_MIN_SCORINGS")
	applyFloatEnv(&cfg.Pipeline.EffectiveScoreMetaWeight, "EFFECTIVE_SCORE_META_WEIGHT")
	applyIntEnv(&cfg.Pipeline.ScoreDisplayWindowDays, "SCORE_DISPLAY_WINDOW_DAYS")
	applyFloatEnv(&cfg.Pipeline.FindingDedupThreshold, "FINDING_DEDUP_THRESHOLD")
	applyIntEnv(&cfg.Pipeline.SeverityDecayAfterOccurrences, "SEVERITY_DECAY_AFTER_OCCURRENCES")
	applyIntEnv(&cfg.Pipeline.RecurringLookbackDays, "RECURRING_LOOKBACK_DAYS")
	applyIntEnv(&cfg.Pipeline.MaxNewFindingsPerWindow, "MAX_NEW_FINDINGS_PER_WINDOW")
	applyIntEnv(&cfg.Pipeline.MaxOpenFindingsPerSystem, "MAX_OPEN_FINDINGS_PER_SYSTEM")
	applyIntEnv(&cfg.Pipeline.AutoResolveAfterMisses, "AUTO_RESOLVE_AFTER_MISSES")
	applyIntEnv(&cfg.Pipeline.MessageMaxLength, "MESSAGE_MAX_LENGTH")
	applyBoolEnv(&cfg.Pipeline.FilterZeroScoreMetaEvents, "FILTER_ZERO_SCORE_META_EVENTS")
	applyBoolEnv(&cfg.Pipeline.MetaPrioritizeHighScores, "META_PRIORITIZE_HIGH_SCORES")
	applyBoolEnv(&cfg.Pipeline.SkipZeroScoreMeta, "SKIP_ZERO_SCORE_META")
	applyBoolEnv(&cfg.Pipeline.FindingDedupEnabled, "FINDING_DEDUP_ENABLED")
	applyBoolEnv(&cfg.Pipeline.SeverityDecayEnabled, "SEVERITY_DECAY_ENABLED")
	applyBoolEnv(&cfg.Pipeline.SeverityFilterEnabled, "SEVERITY_FILTER_ENABLED")
	if v := strings.TrimSpace(getenvOne("SEVERITY_SKIP_LIST")); v != "" {
		cfg.Pipeline.SeveritySkipList = splitCSV(v)
	}

	applyIntEnv(&cfg.Maintenance.IntervalHours, "MAINTENANCE_INTERVAL_HOURS")
	applyIntEnv(&cfg.Maintenance.DefaultRetentionDays, "DEFAULT_RETENTION_DAYS")
	applyBoolEnv(&cfg.Maintenance.BackupEnabled, "BACKUP_ENABLED")
	applyIntEnv(&cfg.Maintenance.BackupIntervalHours, "BACKUP_INTERVAL_HOURS")
	applyIntEnv(&cfg.Maintenance.BackupRetentionCount, "BACKUP_RETENTION_COUNT")
	if v := strings.TrimSpace(getenvOne("BACKUP_FORMAT")); v != "" {
		cfg.Maintenance.BackupFormat = v
	}
	if v := strings.TrimSpace(getenvOne("BACKUP_DIR")); v != "" {
		cfg.Maintenance.BackupDir = v
	}
	if v := strings.TrimSpace(getenvOne("PG_DUMP_PATH")); v != "" {
		cfg.Maintenance.PgDumpPath = v
	}

	if v := strings.TrimSpace(getenvOne("HTTP_ADDR")); v != "" {
		cfg.HTTP.Addr = v
	}

	cfg.Obs.ServiceName = firstNonEmpty(strings.TrimSpace(getenvOne("OTEL_SERVICE_NAME")), cfg.Obs.ServiceName)
	cfg.Obs.ServiceVersion = firstNonEmpty(strings.TrimSpace(getenvOne("SERVICE_VERSION")), cfg.Obs.ServiceVersion)
	cfg.Obs.Environment = firstNonEmpty(strings.TrimSpace(getenvOne("ENVIRONMENT")), cfg.Obs.Environment)
	cfg.Obs.OTLP = strings.TrimSpace(getenvOne("OTEL_EXPORTER_OTLP_ENDPOINT"))

	return cfg, nil
}

func applyIntEnv(dst *int, key string) {
	if v := strings.TrimSpace(getenvOne(key)); v != "" {
		if n, err := parseInt(v); err == nil {
			*dst = n
		}
	}
}

func applyBoolEnv(dst *bool, key string) {
	if v := strings.TrimSpace(getenvOne(key)); v != "" {
		*dst = parseBool(v)
	}
}

func applyFloatEnv(dst *float64, key string) {
	if v := strings.TrimSpace(getenvOne(key)); v != "" {
		if n, err := parseFloat(v); err == nil {
			*dst = n
		}
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || s == "1" || strings.EqualFold(s, "yes")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
