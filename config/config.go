package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Auth         AuthConfig         `yaml:"auth"`
	Users        []User             `yaml:"users"`
	Store        StoreConfig        `yaml:"store"`
	CMS          CMSConfig          `yaml:"cms"`
	DynamoDB     DynamoDBConfig     `yaml:"dynamodb"`
	Minio        MinioConfig        `yaml:"minio"`
	Verification VerificationConfig `yaml:"verification"`
	Review       ReviewConfig       `yaml:"review"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // empty allows any origin
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

// User is an operator allowed into the review console.
// PasswordHash is a bcrypt hash.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// StoreConfig selects the document store driver: memory, cms or dynamodb
type StoreConfig struct {
	Driver         string `yaml:"driver"`
	MaxSubmissions int    `yaml:"max_submissions"`
}

type CMSConfig struct {
	APIURL         string `yaml:"api_url"`
	Dataset        string `yaml:"dataset"`
	Token          string `yaml:"token"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DynamoDBConfig struct {
	Table      string `yaml:"table"`
	InboxTable string `yaml:"inbox_table"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"` // local endpoint, e.g. dynamodb-local
}

type MinioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
	PublicURLs bool   `yaml:"public_urls"` // bucket is publicly readable, skip presigning
}

// VerificationConfig points at the scoring backend's review webhook.
// Secret is sent on every call and is never validated locally.
type VerificationConfig struct {
	WebhookURL     string `yaml:"webhook_url"`
	Secret         string `yaml:"secret"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ReviewConfig struct {
	BatchConcurrency int  `yaml:"batch_concurrency"`
	CheckRevision    bool `yaml:"check_revision"`
}

// Load reads the YAML file at path, applies environment overrides for
// secrets and fills defaults:
//
//	server.port                   8080
//	log.level / log.format        info / text
//	auth.token_expire_hours       24
//	store.driver                  memory
//	store.max_submissions         1000
//	cms.dataset                   production
//	cms.timeout_seconds           15
//	dynamodb.table                airdrop_submissions
//	dynamodb.inbox_table          site_inbox
//	minio.expire_days             7
//	verification.timeout_seconds  15
//	review.batch_concurrency      4
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.setDefaults()

	return &cfg, nil
}

// applyEnv lets deployments keep secrets out of the config file
func (c *Config) applyEnv() {
	if v := os.Getenv("VERIFY_WEBHOOK_URL"); v != "" {
		c.Verification.WebhookURL = v
	}
	if v := os.Getenv("VERIFY_WEBHOOK_SECRET"); v != "" {
		c.Verification.Secret = v
	}
	if v := os.Getenv("CMS_TOKEN"); v != "" {
		c.CMS.Token = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.MaxSubmissions == 0 {
		c.Store.MaxSubmissions = 1000
	}
	if c.CMS.Dataset == "" {
		c.CMS.Dataset = "production"
	}
	if c.CMS.TimeoutSeconds == 0 {
		c.CMS.TimeoutSeconds = 15
	}
	if c.DynamoDB.Table == "" {
		c.DynamoDB.Table = "airdrop_submissions"
	}
	if c.DynamoDB.InboxTable == "" {
		c.DynamoDB.InboxTable = "site_inbox"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Verification.TimeoutSeconds == 0 {
		c.Verification.TimeoutSeconds = 15
	}
	if c.Review.BatchConcurrency <= 0 {
		c.Review.BatchConcurrency = 4
	}
}

// FindUser finds an operator by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
