package config

import (
	yamlenv "github.com/ifuryst/go-yaml-env"

	"github.com/promostream/promostream/pkg/logger"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Logger    logger.Config   `yaml:"logger"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sources   SourcesConfig   `yaml:"sources"`
	Affiliate AffiliateConfig `yaml:"affiliate"`
	Shortener ShortenerConfig `yaml:"shortener"`
	Channels  ChannelsConfig  `yaml:"channels"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
}

type ServerConfig struct {
	Port       int    `yaml:"port"`
	Host       string `yaml:"host"`
	Mode       string `yaml:"mode"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	TOTPSecret string `yaml:"totp_secret"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
	TimeZone string `yaml:"timezone"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SchedulerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	CollectInterval  string `yaml:"collect_interval"`
	PostingInterval  string `yaml:"posting_interval"`
	BackfillInterval string `yaml:"backfill_interval"`
	BackfillDelay    string `yaml:"backfill_delay"`
}

type SourcesConfig struct {
	MercadoLivre MercadoLivreConfig `yaml:"mercadolivre"`
	Amazon       AmazonConfig       `yaml:"amazon"`
	Awin         AwinConfig         `yaml:"awin"`
	RSS          RSSConfig          `yaml:"rss"`
	FetchLimit   int                `yaml:"fetch_limit"`
}

type MercadoLivreConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SiteID        string `yaml:"site_id"`
	APIBaseURL    string `yaml:"api_base_url"`
	TokenEndpoint string `yaml:"token_endpoint"`
	DealsPageURL  string `yaml:"deals_page_url"`
	ClientID      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	// SafetyMarginMinutes is subtracted from the declared token expiry so a
	// token never expires between the usability check and the request using it.
	SafetyMarginMinutes int `yaml:"safety_margin_minutes"`
}

type AmazonConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DealsPageURL string `yaml:"deals_page_url"`
}

type AwinConfig struct {
	Enabled bool   `yaml:"enabled"`
	FeedURL string `yaml:"feed_url"`
	APIKey  string `yaml:"api_key"`
}

type RSSConfig struct {
	Enabled  bool     `yaml:"enabled"`
	FeedURLs []string `yaml:"feed_urls"`
}

type AffiliateConfig struct {
	// IDs maps source name to the operator's affiliate identifier for that
	// source. A value that is itself a URL is treated as a social/referral
	// link whose query parameters carry the attribution.
	IDs map[string]string `yaml:"ids"`
	// Params maps source name to the query parameter the identifier is
	// appended as when no richer mechanism exists (defaults to "a").
	Params map[string]string `yaml:"params"`
	// MaxURLLength is the longest URL posted as-is; anything longer goes
	// through the internal shortener.
	MaxURLLength int `yaml:"max_url_length"`
}

type ShortenerConfig struct {
	BaseURL string `yaml:"base_url"`
	TTLDays int    `yaml:"ttl_days"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Discord  DiscordConfig  `yaml:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

type WhatsAppConfig struct {
	Enabled    bool   `yaml:"enabled"`
	APIBaseURL string `yaml:"api_base_url"`
	APIKey     string `yaml:"api_key"`
	Instance   string `yaml:"instance"`
	GroupJID   string `yaml:"group_jid"`
}

type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

func LoadConfig(configPath string) (*Config, error) {
	cfg, err := yamlenv.LoadConfig[Config](configPath)
	if err != nil {
		return nil, err
	}

	// Set default values
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5380
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "debug"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.TimeZone == "" {
		cfg.Database.TimeZone = "UTC"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Scheduler.CollectInterval == "" {
		cfg.Scheduler.CollectInterval = "6h"
	}
	if cfg.Scheduler.PostingInterval == "" {
		cfg.Scheduler.PostingInterval = "30m"
	}
	if cfg.Scheduler.BackfillInterval == "" {
		cfg.Scheduler.BackfillInterval = "2h"
	}
	if cfg.Scheduler.BackfillDelay == "" {
		cfg.Scheduler.BackfillDelay = "3s"
	}
	if cfg.Sources.FetchLimit == 0 {
		cfg.Sources.FetchLimit = 50
	}
	if cfg.Sources.MercadoLivre.SiteID == "" {
		cfg.Sources.MercadoLivre.SiteID = "MLB"
	}
	if cfg.Sources.MercadoLivre.APIBaseURL == "" {
		cfg.Sources.MercadoLivre.APIBaseURL = "https://api.mercadolibre.com"
	}
	if cfg.Sources.MercadoLivre.TokenEndpoint == "" {
		cfg.Sources.MercadoLivre.TokenEndpoint = "https://api.mercadolibre.com/oauth/token"
	}
	if cfg.Sources.MercadoLivre.DealsPageURL == "" {
		cfg.Sources.MercadoLivre.DealsPageURL = "https://www.mercadolivre.com.br/ofertas"
	}
	if cfg.Sources.MercadoLivre.SafetyMarginMinutes == 0 {
		cfg.Sources.MercadoLivre.SafetyMarginMinutes = 5
	}
	if cfg.Sources.Amazon.DealsPageURL == "" {
		cfg.Sources.Amazon.DealsPageURL = "https://www.amazon.com.br/deals"
	}
	if cfg.Affiliate.MaxURLLength == 0 {
		cfg.Affiliate.MaxURLLength = 120
	}
	if cfg.Shortener.TTLDays == 0 {
		cfg.Shortener.TTLDays = 90
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}

	return cfg, nil
}
