package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort int            `yaml:"server_port"`
	LogLevel   string         `yaml:"log_level"`
	Database   DatabaseConfig `yaml:"database"`
	Auth       AuthConfig     `yaml:"auth"`
	Strava     StravaConfig   `yaml:"strava"`
	Limits     LimitsConfig   `yaml:"limits"`
	Storage    StorageConfig  `yaml:"storage"`
	MQ         MQConfig       `yaml:"mq"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	// FrontendURL receives the session token after a successful Strava login.
	// When empty the callback answers with JSON instead of redirecting.
	FrontendURL string `yaml:"frontend_url"`
}

type StravaConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	APIBaseURL   string        `yaml:"api_base_url"`
	AuthURL      string        `yaml:"auth_url"`
	TokenURL     string        `yaml:"token_url"`
	Scopes       []string      `yaml:"scopes"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
}

// LimitsConfig holds the quota ceilings enforced by the race engine.
// Premium users are exempt from the organiser and joined-race ceilings.
type LimitsConfig struct {
	MaxActiveOrganizedRaces int `yaml:"max_active_organized_races"`
	MaxJoinedRaces          int `yaml:"max_joined_races"`
	MaxParticipantsPerRace  int `yaml:"max_participants_per_race"`
}

type StorageConfig struct {
	// Provider is one of "none", "minio" or "gcs".
	Provider string      `yaml:"provider"`
	Minio    MinioConfig `yaml:"minio"`
	GCS      GCSConfig   `yaml:"gcs"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type MQConfig struct {
	// Provider is one of "none", "rabbitmq" or "pubsub".
	Provider string         `yaml:"provider"`
	Channel  string         `yaml:"channel"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
}

type RabbitMQConfig struct {
	URL             string `yaml:"url"`
	QueueDurable    bool   `yaml:"queue_durable"`
	QueueAutoDelete bool   `yaml:"queue_auto_delete"`
	PrefetchCount   int    `yaml:"prefetch_count"`
}

type PubSubConfig struct {
	ProjectID          string `yaml:"project_id"`
	CredentialsFile    string `yaml:"credentials_file"`
	SubscriptionSuffix string `yaml:"subscription_suffix"`
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and finally environment variables.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	cfg := defaultConfig()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		ServerPort: 8080,
		LogLevel:   "info",
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "matesrace",
			Password: "password",
			DBName:   "matesrace_db",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Strava: StravaConfig{
			APIBaseURL:  "https://www.strava.com/api/v3",
			AuthURL:     "https://www.strava.com/oauth/authorize",
			TokenURL:    "https://www.strava.com/oauth/token",
			Scopes:      []string{"activity:read_all", "profile:read_all"},
			HTTPTimeout: 15 * time.Second,
		},
		Limits: LimitsConfig{
			MaxActiveOrganizedRaces: 10,
			MaxJoinedRaces:          1000,
			MaxParticipantsPerRace:  500,
		},
		Storage: StorageConfig{Provider: "none"},
		MQ: MQConfig{
			Provider: "none",
			Channel:  "race-events",
		},
	}
}

func (c *Config) applyEnv() {
	c.ServerPort = getEnvInt("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.UseSSL = getEnvBool("DB_USE_SSL", c.Database.UseSSL)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvDuration("JWT_TTL", c.Auth.TokenTTL)
	c.Auth.FrontendURL = getEnv("FRONTEND_URL", c.Auth.FrontendURL)

	c.Strava.ClientID = getEnv("STRAVA_CLIENT_ID", c.Strava.ClientID)
	c.Strava.ClientSecret = getEnv("STRAVA_CLIENT_SECRET", c.Strava.ClientSecret)
	c.Strava.RedirectURL = getEnv("STRAVA_REDIRECT_URL", c.Strava.RedirectURL)
	c.Strava.APIBaseURL = getEnv("STRAVA_API_BASE_URL", c.Strava.APIBaseURL)
	c.Strava.AuthURL = getEnv("STRAVA_AUTH_URL", c.Strava.AuthURL)
	c.Strava.TokenURL = getEnv("STRAVA_TOKEN_URL", c.Strava.TokenURL)
	c.Strava.HTTPTimeout = getEnvDuration("STRAVA_HTTP_TIMEOUT", c.Strava.HTTPTimeout)

	c.Limits.MaxActiveOrganizedRaces = getEnvInt("MAX_ACTIVE_ORGANIZED_RACES", c.Limits.MaxActiveOrganizedRaces)
	c.Limits.MaxJoinedRaces = getEnvInt("MAX_JOINED_RACES", c.Limits.MaxJoinedRaces)
	c.Limits.MaxParticipantsPerRace = getEnvInt("MAX_PARTICIPANTS_PER_RACE", c.Limits.MaxParticipantsPerRace)

	c.Storage.Provider = getEnv("STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.Minio.Endpoint = getEnv("MINIO_ENDPOINT", c.Storage.Minio.Endpoint)
	c.Storage.Minio.AccessKey = getEnv("MINIO_ACCESS_KEY", c.Storage.Minio.AccessKey)
	c.Storage.Minio.SecretKey = getEnv("MINIO_SECRET_KEY", c.Storage.Minio.SecretKey)
	c.Storage.Minio.Bucket = getEnv("MINIO_BUCKET", c.Storage.Minio.Bucket)
	c.Storage.Minio.UseSSL = getEnvBool("MINIO_USE_SSL", c.Storage.Minio.UseSSL)
	c.Storage.GCS.Bucket = getEnv("GCS_BUCKET", c.Storage.GCS.Bucket)
	c.Storage.GCS.ProjectID = getEnv("GCS_PROJECT_ID", c.Storage.GCS.ProjectID)
	c.Storage.GCS.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", c.Storage.GCS.CredentialsFile)

	c.MQ.Provider = getEnv("MQ_PROVIDER", c.MQ.Provider)
	c.MQ.Channel = getEnv("MQ_CHANNEL", c.MQ.Channel)
	c.MQ.RabbitMQ.URL = getEnv("RABBITMQ_URL", c.MQ.RabbitMQ.URL)
	c.MQ.RabbitMQ.QueueDurable = getEnvBool("RABBITMQ_QUEUE_DURABLE", c.MQ.RabbitMQ.QueueDurable)
	c.MQ.RabbitMQ.QueueAutoDelete = getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", c.MQ.RabbitMQ.QueueAutoDelete)
	c.MQ.RabbitMQ.PrefetchCount = getEnvInt("RABBITMQ_PREFETCH_COUNT", c.MQ.RabbitMQ.PrefetchCount)
	c.MQ.PubSub.ProjectID = getEnv("PUBSUB_PROJECT_ID", c.MQ.PubSub.ProjectID)
	c.MQ.PubSub.CredentialsFile = getEnv("PUBSUB_CREDENTIALS_FILE", c.MQ.PubSub.CredentialsFile)
	c.MQ.PubSub.SubscriptionSuffix = getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", c.MQ.PubSub.SubscriptionSuffix)
}

func (c *Config) validate() error {
	switch c.Storage.Provider {
	case "", "none", "minio", "gcs":
	default:
		return fmt.Errorf("unknown storage provider %q", c.Storage.Provider)
	}
	switch c.MQ.Provider {
	case "", "none", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unknown mq provider %q", c.MQ.Provider)
	}
	if c.Limits.MaxActiveOrganizedRaces < 1 || c.Limits.MaxJoinedRaces < 1 || c.Limits.MaxParticipantsPerRace < 1 {
		return fmt.Errorf("limits must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}
