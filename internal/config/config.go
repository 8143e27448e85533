package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port          int
	DBDSN         string
	RedisURL      string
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	AllowOrigins  []string

	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig

	Mail    MailConfig
	Alerts  AlertConfig
	Storage StorageConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// MailConfig descreve o servidor SMTP usado para alertas de vencimento.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// Enabled indica se há servidor configurado; sem ele os envios viram no-op.
func (m MailConfig) Enabled() bool {
	return m.Host != "" && m.From != ""
}

// AlertConfig controla a varredura periódica de certificações.
type AlertConfig struct {
	Enabled  bool
	Interval time.Duration
}

// StorageConfig parametriza o uploader de documentos.
type StorageConfig struct {
	Provider    string
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTRefreshTTL = refreshTTL

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	mailPort, err := strconv.Atoi(getEnv("MAIL_PORT", "587"))
	if err != nil || mailPort <= 0 {
		return nil, errors.New("MAIL_PORT inválida")
	}
	cfg.Mail = MailConfig{
		Host:     getEnv("MAIL_HOST", ""),
		Port:     mailPort,
		Username: getEnv("MAIL_USERNAME", ""),
		Password: getEnv("MAIL_PASSWORD", ""),
		From:     getEnv("MAIL_FROM", ""),
		UseTLS:   getEnv("MAIL_USE_TLS", "true") == "true",
	}

	sweepInterval, err := parseDurationEnv("ALERT_SWEEP_INTERVAL", 6*time.Hour)
	if err != nil {
		return nil, err
	}
	// A política de limiar exato exige pelo menos uma varredura por dia.
	if sweepInterval > 24*time.Hour {
		return nil, errors.New("ALERT_SWEEP_INTERVAL deve ser no máximo 24h")
	}
	cfg.Alerts = AlertConfig{
		Enabled:  getEnv("ALERT_SWEEP_ENABLED", "true") == "true",
		Interval: sweepInterval,
	}

	cfg.Storage = StorageConfig{
		Provider:    getEnv("STORAGE_PROVIDER", "noop"),
		S3Endpoint:  getEnv("STORAGE_S3_ENDPOINT", ""),
		S3Region:    getEnv("STORAGE_S3_REGION", "auto"),
		S3Bucket:    getEnv("STORAGE_S3_BUCKET", ""),
		S3AccessKey: getEnv("STORAGE_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("STORAGE_S3_SECRET_KEY", ""),
		S3PublicURL: getEnv("STORAGE_S3_PUBLIC_URL", ""),
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
