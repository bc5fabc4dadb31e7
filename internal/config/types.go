package config

// Config is the whole config file. JSON is the native format; YAML is
// accepted and coerced. Unknown fields are rejected so typos fail loudly
// at startup instead of silently disabling a section.
type Config struct {
	Telegram    TelegramConfig     `json:"telegram"`
	Logging     LoggingConfig      `json:"logging"`
	Storage     *StorageConfig     `json:"storage,omitempty"`
	Publisher   PublisherConfig    `json:"publisher"`
	Targets     TargetsConfig      `json:"targets"`
	Media       MediaConfig        `json:"media"`
	Maintenance *MaintenanceConfig `json:"maintenance,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// LogChatID receives forwarded warning/error log lines when
	// logging.telegram is enabled.
	LogChatID int64 `json:"log_chat_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the sqlite persistence layer. Omitting the whole
// section disables persistence (the in-memory lifecycle still works).
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// PublisherConfig controls the dispatch engine.
//
// Defaults (when fields are omitted/zero):
//   - max_attempts: 3
//   - retry_base: "1s"
//   - simulated_delay: "2s"
//   - http_timeout: "90s"
type PublisherConfig struct {
	MaxAttempts    int    `json:"max_attempts,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	SimulatedDelay string `json:"simulated_delay,omitempty"`
	// HTTPTimeout bounds each platform upload call.
	HTTPTimeout string `json:"http_timeout,omitempty"`
}

// MediaConfig controls inbound asset handling.
type MediaConfig struct {
	TempDir       string   `json:"temp_dir,omitempty"`
	MaxFileSizeMB int      `json:"max_file_size_mb,omitempty"`
	Formats       []string `json:"formats,omitempty"` // default: mp4, mov, avi, mkv
}

// MaintenanceConfig controls scheduled pruning of old records and orphaned
// temp files.
type MaintenanceConfig struct {
	Enabled            bool   `json:"enabled"`
	Schedule           string `json:"schedule,omitempty"` // cron spec, default daily
	PostRetentionDays  int    `json:"post_retention_days,omitempty"`
	AuditRetentionDays int    `json:"audit_retention_days,omitempty"`
}

// TargetsConfig carries per-target credentials. Every field can also come
// from the environment (see ApplyEnv); a file value wins over the env.
type TargetsConfig struct {
	TikTok    TikTokConfig    `json:"tiktok"`
	Twitter   TwitterConfig   `json:"twitter"`
	Facebook  FacebookConfig  `json:"facebook"`
	Instagram InstagramConfig `json:"instagram"`
	LinkedIn  LinkedInConfig  `json:"linkedin"`
	YouTube   YouTubeConfig   `json:"youtube"`
	Tumblr    TumblrConfig    `json:"tumblr"`
	Channel   ChannelConfig   `json:"telegram_channel"`
}

type TikTokConfig struct {
	ClientKey    string `json:"client_key,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
}

type TwitterConfig struct {
	AccessToken string `json:"access_token,omitempty"`
}

type FacebookConfig struct {
	AccessToken string `json:"access_token,omitempty"`
	PageID      string `json:"page_id,omitempty"`
}

type InstagramConfig struct {
	AccessToken       string `json:"access_token,omitempty"`
	BusinessAccountID string `json:"business_account_id,omitempty"`
}

type LinkedInConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
}

type YouTubeConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type TumblrConfig struct {
	AccessToken string `json:"access_token,omitempty"`
	BlogName    string `json:"blog_name,omitempty"`
}

// ChannelConfig is the Telegram channel target; it reuses the bot token.
type ChannelConfig struct {
	ChannelID string `json:"channel_id,omitempty"`
}
