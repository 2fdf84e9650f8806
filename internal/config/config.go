// Package config builds the server configuration from defaults, an optional
// TOML file and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Port         string        `toml:"port"`
	GinMode      string        `toml:"ginMode"`
	LogLevel     string        `toml:"logLevel"`
	TemplatesDir string        `toml:"templatesDir"` // Empty means the embedded templates
	ListCacheTTL time.Duration `toml:"listCacheTTL"`

	Database Database `toml:"database"`
	Session  Session  `toml:"session"`
	Storage  Storage  `toml:"storage"`
	Kafka    Kafka    `toml:"kafka"`
}

type Database struct {
	Driver string `toml:"driver"` // postgres, sqlite
	URL    string `toml:"url"`
}

type Session struct {
	Name   string `toml:"name"`
	Store  string `toml:"store"` // cookie, memory
	Secret string `toml:"secret"`
	MaxAge int    `toml:"maxAge"` // seconds
}

type Storage struct {
	Backend   string `toml:"backend"` // local, s3
	MediaRoot string `toml:"mediaRoot"`
	MediaURL  string `toml:"mediaURL"`
	S3        S3     `toml:"s3"`
}

type S3 struct {
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"accessKey"`
	SecretKey string `toml:"secretKey"`
	PublicURL string `toml:"publicURL"`
}

type Kafka struct {
	Brokers []string `toml:"brokers"` // Empty disables publishing
	Topic   string   `toml:"topic"`
}

// LoadDefaults fills c with local development values.
func (c *Config) LoadDefaults() {
	c.Port = "8080"
	c.GinMode = "release"
	c.LogLevel = "info"
	c.ListCacheTTL = 30 * time.Second

	c.Database = Database{
		Driver: "postgres",
		URL:    "host=localhost user=postgres password=postgres dbname=spacomments port=5432 sslmode=disable",
	}
	c.Session = Session{
		Name:   "spacomments_session",
		Store:  "cookie",
		Secret: "secret_key_change_me",
		MaxAge: 14 * 24 * 3600,
	}
	c.Storage = Storage{
		Backend:   "local",
		MediaRoot: "./media",
		MediaURL:  "/media/",
		S3: S3{
			Bucket: "spacomments",
			Region: "us-east-1",
		},
	}
	c.Kafka = Kafka{Topic: "comments"}
}

// Load applies defaults, then the TOML file named by CONFIG_FILE (config.toml
// when unset, skipped if missing), then environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.toml"
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.GinMode, "GIN_MODE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.TemplatesDir, "TEMPLATES_DIR")

	setString(&c.Database.Driver, "DATABASE_DRIVER")
	setString(&c.Database.URL, "DATABASE_URL")

	setString(&c.Session.Name, "SESSION_NAME")
	setString(&c.Session.Store, "SESSION_STORE")
	setString(&c.Session.Secret, "SESSION_SECRET")

	setString(&c.Storage.Backend, "STORAGE_BACKEND")
	setString(&c.Storage.MediaRoot, "MEDIA_ROOT")
	setString(&c.Storage.MediaURL, "MEDIA_URL")
	setString(&c.Storage.S3.Bucket, "S3_BUCKET")
	setString(&c.Storage.S3.Region, "S3_REGION")
	setString(&c.Storage.S3.Endpoint, "S3_ENDPOINT")
	setString(&c.Storage.S3.AccessKey, "S3_ACCESS_KEY")
	setString(&c.Storage.S3.SecretKey, "S3_SECRET_KEY")
	setString(&c.Storage.S3.PublicURL, "S3_PUBLIC_URL")

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	setString(&c.Kafka.Topic, "KAFKA_TOPIC")

	if v := os.Getenv("LIST_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LIST_CACHE_TTL %q: %w", v, err)
		}
		c.ListCacheTTL = d
	}
	if v := os.Getenv("SESSION_MAX_AGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SESSION_MAX_AGE %q: %w", v, err)
		}
		c.Session.MaxAge = n
	}
	return nil
}

// Validate rejects unknown backends and missing required values.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}

	switch c.Session.Store {
	case "cookie", "memory":
	default:
		return fmt.Errorf("unknown session store %q", c.Session.Store)
	}
	if c.Session.Secret == "" {
		return errors.New("session secret is required")
	}

	switch c.Storage.Backend {
	case "local":
		if c.Storage.MediaRoot == "" {
			return errors.New("media root is required for local storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("s3 bucket is required for s3 storage")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
