package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/g-abate/rate-compare/internal/models"
	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port string
}

type LogConfig struct {
	Format string // "json" or "text"
	Level  string
}

type EngineConfig struct {
	CacheTTL        time.Duration
	ChannelTimeout  time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
}

// ChannelConfig holds one channel's listing reference and, when an HTTP
// extractor serves it, the extractor base URL. Without a URL the channel
// runs on the built-in stub adapter.
type ChannelConfig struct {
	ListingRef   string
	ExtractorURL string
}

type PropertyEnv struct {
	ID          string
	Name        string
	Locale      string
	DisplayMode string
	Theme       string
}

// AppConfig holds the whole application configuration.
type AppConfig struct {
	AppName  string
	Server   ServerConfig
	Log      LogConfig
	Engine   EngineConfig
	Property PropertyEnv
	Channels map[models.Channel]ChannelConfig
}

// LoadConfig reads configuration from the environment, loading a .env file
// first when one is present.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	var err error
	if len(envPath) > 0 {
		err = godotenv.Load(envPath[0])
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Printf("Info: no .env file loaded (path: %v): %v", envPath, err)
	}

	cfg := &AppConfig{}

	cfg.AppName = getEnvAsString("APP_NAME", "rate-compare")
	cfg.Server.Port = getEnvAsString("PORT", "8080")
	cfg.Log.Format = getEnvAsString("LOG_FORMAT", "json")
	cfg.Log.Level = getEnvAsString("LOG_LEVEL", "info")

	cfg.Engine.CacheTTL = time.Duration(getEnvAsInt("CACHE_TTL_SECONDS", 300)) * time.Second
	cfg.Engine.ChannelTimeout = time.Duration(getEnvAsInt("CHANNEL_TIMEOUT_MS", 2000)) * time.Millisecond
	cfg.Engine.RateLimit = getEnvAsInt("RATE_LIMIT", 10)
	cfg.Engine.RateLimitWindow = time.Duration(getEnvAsInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second

	cfg.Property.ID = os.Getenv("PROPERTY_ID")
	if cfg.Property.ID == "" {
		return nil, fmt.Errorf("PROPERTY_ID environment variable is required")
	}
	cfg.Property.Name = getEnvAsString("PROPERTY_NAME", cfg.Property.ID)
	cfg.Property.Locale = getEnvAsString("PROPERTY_LOCALE", models.DefaultLocale)
	cfg.Property.DisplayMode = getEnvAsString("DISPLAY_MODE", string(models.DisplayInline))
	cfg.Property.Theme = getEnvAsString("THEME", string(models.ThemeLight))

	cfg.Channels = make(map[models.Channel]ChannelConfig)
	for _, ch := range models.SupportedChannels {
		prefix := strings.ToUpper(string(ch))
		ref := os.Getenv(prefix + "_LISTING_REF")
		if ref == "" {
			continue
		}
		cfg.Channels[ch] = ChannelConfig{
			ListingRef:   ref,
			ExtractorURL: os.Getenv(prefix + "_EXTRACTOR_URL"),
		}
	}

	return cfg, nil
}

// PropertyConfig builds the engine's property configuration from the
// environment values.
func (c *AppConfig) PropertyConfig() models.PropertyConfig {
	return models.NewPropertyConfig(func(p *models.PropertyConfig) {
		p.ID = c.Property.ID
		p.Name = c.Property.Name
		p.Settings.Locale = c.Property.Locale
		p.Settings.DisplayMode = models.DisplayMode(c.Property.DisplayMode)
		p.Settings.Theme = models.Theme(c.Property.Theme)
		for ch, cc := range c.Channels {
			p.Channels[ch] = cc.ListingRef
		}
	})
}

func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads an environment variable as int or returns the default.
// Logs when the variable is set but not parseable.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	valueInt, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}
