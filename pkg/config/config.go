package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Aggregate modes for division calculation.
const (
	AggregateSum     = "SUM"
	AggregateAverage = "AVERAGE"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Sentry   SentryConfig
	Cache    CacheConfig
	Division DivisionConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SentryConfig configures error reporting. An empty DSN disables it.
type SentryConfig struct {
	DSN     string
	Release string
}

// CacheConfig toggles redis-backed caching of grading and division payloads.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// DivisionBand maps an aggregate score range onto a division tier.
type DivisionBand struct {
	Division int
	MinScore float64
	MaxScore float64
}

// DivisionConfig governs how division tiers are derived from marks.
type DivisionConfig struct {
	Aggregate string
	Bands     []DivisionBand
	PassMax   int
}

// ReportsConfig carries presentation settings for rendered documents.
type ReportsConfig struct {
	SchoolName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Sentry = SentryConfig{
		DSN:     v.GetString("SENTRY_DSN"),
		Release: v.GetString("SENTRY_RELEASE"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	bands, err := ParseDivisionBands(v.GetString("DIVISION_BANDS"))
	if err != nil {
		return nil, fmt.Errorf("parse DIVISION_BANDS: %w", err)
	}
	aggregate := strings.ToUpper(strings.TrimSpace(v.GetString("DIVISION_AGGREGATE")))
	if aggregate != AggregateSum {
		aggregate = AggregateAverage
	}
	cfg.Division = DivisionConfig{
		Aggregate: aggregate,
		Bands:     bands,
		PassMax:   v.GetInt("DIVISION_PASS_MAX"),
	}

	cfg.Reports = ReportsConfig{
		SchoolName: v.GetString("REPORT_SCHOOL_NAME"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "school_reports")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "sma-report-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SENTRY_DSN", "")
	v.SetDefault("SENTRY_RELEASE", "")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("DIVISION_AGGREGATE", AggregateAverage)
	v.SetDefault("DIVISION_BANDS", "1:80-100,2:60-79.99,3:40-59.99,4:0-39.99")
	v.SetDefault("DIVISION_PASS_MAX", 3)

	v.SetDefault("REPORT_SCHOOL_NAME", "")
}

// ParseDivisionBands reads "division:min-max" pairs separated by commas.
func ParseDivisionBands(raw string) ([]DivisionBand, error) {
	parts := splitAndTrim(raw)
	bands := make([]DivisionBand, 0, len(parts))
	for _, part := range parts {
		divRaw, rangeRaw, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("band %q: expected division:min-max", part)
		}
		division, err := strconv.Atoi(strings.TrimSpace(divRaw))
		if err != nil || division <= 0 {
			return nil, fmt.Errorf("band %q: invalid division", part)
		}
		minRaw, maxRaw, ok := strings.Cut(rangeRaw, "-")
		if !ok {
			return nil, fmt.Errorf("band %q: expected min-max range", part)
		}
		minScore, err := strconv.ParseFloat(strings.TrimSpace(minRaw), 64)
		if err != nil {
			return nil, fmt.Errorf("band %q: invalid min: %w", part, err)
		}
		maxScore, err := strconv.ParseFloat(strings.TrimSpace(maxRaw), 64)
		if err != nil {
			return nil, fmt.Errorf("band %q: invalid max: %w", part, err)
		}
		if minScore > maxScore {
			return nil, fmt.Errorf("band %q: min exceeds max", part)
		}
		bands = append(bands, DivisionBand{Division: division, MinScore: minScore, MaxScore: maxScore})
	}
	if err := checkBandOverlap(bands); err != nil {
		return nil, err
	}
	return bands, nil
}

// checkBandOverlap rejects repeated divisions and score ranges that share a value.
func checkBandOverlap(bands []DivisionBand) error {
	seen := make(map[int]struct{}, len(bands))
	for _, b := range bands {
		if _, dup := seen[b.Division]; dup {
			return fmt.Errorf("division %d listed more than once", b.Division)
		}
		seen[b.Division] = struct{}{}
	}
	ordered := append([]DivisionBand(nil), bands...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].MinScore < ordered[j].MinScore })
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if cur.MinScore <= prev.MaxScore {
			return fmt.Errorf("division %d (%g-%g) overlaps division %d (%g-%g)",
				cur.Division, cur.MinScore, cur.MaxScore, prev.Division, prev.MinScore, prev.MaxScore)
		}
	}
	return nil
}

// PercentBandsWithSum reports whether SUM aggregation is paired with bands
// that top out at 100. Summed marks over several subjects exceed that range,
// so such bands need rescaling to the subject count.
func (d DivisionConfig) PercentBandsWithSum() bool {
	if d.Aggregate != AggregateSum || len(d.Bands) == 0 {
		return false
	}
	top := d.Bands[0].MaxScore
	for _, b := range d.Bands[1:] {
		if b.MaxScore > top {
			top = b.MaxScore
		}
	}
	return top <= 100
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
