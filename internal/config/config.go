package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	S3        S3Config
	Mailer    MailerConfig
	FFmpeg    FFmpegConfig
	SignedURL SignedURLConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	ComposePerHour int
	UploadPerHour  int
}

// S3Config addresses object storage. MediaBucket holds source clips and
// rendered outputs; FramesBucket holds decorative frame assets, with
// FramesFallbackBucket tried when an asset is missing from the primary.
type S3Config struct {
	Endpoint             string
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	MediaBucket          string
	FramesBucket         string
	FramesFallbackBucket string
	PublicURL            string
}

type MailerConfig struct {
	ServiceURL string
	Timeout    int // seconds
}

type FFmpegConfig struct {
	BinaryPath string
	Timeout    int // seconds, per engine invocation
	WorkDir    string
}

// SignedURLConfig carries the two independent lifetimes the pipeline uses:
// a short one for worker-internal re-reads and a long one for the URL
// embedded in the delivery email.
type SignedURLConfig struct {
	ProcessTTL time.Duration
	EmailTTL   time.Duration
}

type GatewayConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("ratelimit.compose_per_hour", "RATELIMIT_COMPOSE_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("s3.endpoint", "S3_ENDPOINT")
	_ = viper.BindEnv("s3.region", "S3_REGION")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.media_bucket", "S3_MEDIA_BUCKET")
	_ = viper.BindEnv("s3.frames_bucket", "S3_FRAMES_BUCKET")
	_ = viper.BindEnv("s3.frames_fallback_bucket", "S3_FRAMES_FALLBACK_BUCKET")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("mailer.service_url", "MAILER_SERVICE_URL")
	_ = viper.BindEnv("mailer.timeout", "MAILER_TIMEOUT")
	_ = viper.BindEnv("ffmpeg.binary_path", "FFMPEG_PATH")
	_ = viper.BindEnv("ffmpeg.timeout", "FFMPEG_TIMEOUT")
	_ = viper.BindEnv("ffmpeg.work_dir", "FFMPEG_WORK_DIR")
	_ = viper.BindEnv("signedurl.process_ttl_seconds", "SIGNED_URL_PROCESS_TTL")
	_ = viper.BindEnv("signedurl.email_ttl_seconds", "SIGNED_URL_EMAIL_TTL")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.compose_per_hour", 20)
	viper.SetDefault("ratelimit.upload_per_hour", 50)

	viper.SetDefault("s3.region", "auto")
	viper.SetDefault("s3.media_bucket", "videos")
	viper.SetDefault("s3.frames_bucket", "frames")
	viper.SetDefault("s3.frames_fallback_bucket", "assets")

	viper.SetDefault("mailer.service_url", "http://localhost:8086")
	viper.SetDefault("mailer.timeout", 30)

	viper.SetDefault("ffmpeg.binary_path", "ffmpeg")
	viper.SetDefault("ffmpeg.timeout", 300)
	viper.SetDefault("ffmpeg.work_dir", "")

	// One hour for worker-internal reads, seven days for the email link.
	viper.SetDefault("signedurl.process_ttl_seconds", 3600)
	viper.SetDefault("signedurl.email_ttl_seconds", 7*24*3600)

	viper.SetDefault("gateway.enabled", false)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			ComposePerHour: viper.GetInt("ratelimit.compose_per_hour"),
			UploadPerHour:  viper.GetInt("ratelimit.upload_per_hour"),
		},
		S3: S3Config{
			Endpoint:             viper.GetString("s3.endpoint"),
			Region:               viper.GetString("s3.region"),
			AccessKeyID:          viper.GetString("s3.access_key_id"),
			SecretAccessKey:      viper.GetString("s3.secret_access_key"),
			MediaBucket:          viper.GetString("s3.media_bucket"),
			FramesBucket:         viper.GetString("s3.frames_bucket"),
			FramesFallbackBucket: viper.GetString("s3.frames_fallback_bucket"),
			PublicURL:            viper.GetString("s3.public_url"),
		},
		Mailer: MailerConfig{
			ServiceURL: viper.GetString("mailer.service_url"),
			Timeout:    viper.GetInt("mailer.timeout"),
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: viper.GetString("ffmpeg.binary_path"),
			Timeout:    viper.GetInt("ffmpeg.timeout"),
			WorkDir:    viper.GetString("ffmpeg.work_dir"),
		},
		SignedURL: SignedURLConfig{
			ProcessTTL: time.Duration(viper.GetInt("signedurl.process_ttl_seconds")) * time.Second,
			EmailTTL:   time.Duration(viper.GetInt("signedurl.email_ttl_seconds")) * time.Second,
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}
