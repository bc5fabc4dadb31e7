package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Parse reads and strictly decodes the file at path. YAML files are
// coerced to JSON first so both formats share one strict decoder.
func Parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSON(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	cfg.ApplyEnv()
	return &cfg, nil
}

func coerceToJSON(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	v = normalizeYAML(v)
	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be
// JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		for k, v := range x {
			x[k] = normalizeYAML(v)
		}
		return x
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}

// ApplyEnv fills empty credential fields from the environment. The
// deployment historically injected secrets via env vars, so keep both
// paths working; a non-empty file value always wins.
func (c *Config) ApplyEnv() {
	overlay(&c.Telegram.Token, "TELEGRAM_BOT_TOKEN")
	overlay(&c.Targets.Channel.ChannelID, "TELEGRAM_CHANNEL_ID")

	overlay(&c.Targets.TikTok.ClientKey, "TIKTOK_CLIENT_KEY")
	overlay(&c.Targets.TikTok.ClientSecret, "TIKTOK_CLIENT_SECRET")
	overlay(&c.Targets.TikTok.AccessToken, "TIKTOK_ACCESS_TOKEN")

	overlay(&c.Targets.Twitter.AccessToken, "TWITTER_ACCESS_TOKEN")

	overlay(&c.Targets.Facebook.AccessToken, "FACEBOOK_ACCESS_TOKEN")
	overlay(&c.Targets.Facebook.PageID, "FACEBOOK_PAGE_ID")

	overlay(&c.Targets.Instagram.AccessToken, "FACEBOOK_ACCESS_TOKEN")
	overlay(&c.Targets.Instagram.BusinessAccountID, "INSTAGRAM_BUSINESS_ACCOUNT_ID")

	overlay(&c.Targets.LinkedIn.ClientID, "LINKEDIN_CLIENT_ID")
	overlay(&c.Targets.LinkedIn.ClientSecret, "LINKEDIN_CLIENT_SECRET")
	overlay(&c.Targets.LinkedIn.AccessToken, "LINKEDIN_ACCESS_TOKEN")

	overlay(&c.Targets.YouTube.ClientID, "YOUTUBE_CLIENT_ID")
	overlay(&c.Targets.YouTube.ClientSecret, "YOUTUBE_CLIENT_SECRET")
	overlay(&c.Targets.YouTube.RefreshToken, "YOUTUBE_REFRESH_TOKEN")

	overlay(&c.Targets.Tumblr.AccessToken, "TUMBLR_ACCESS_TOKEN")
	overlay(&c.Targets.Tumblr.BlogName, "TUMBLR_BLOG_NAME")
}

func overlay(dst *string, env string) {
	if strings.TrimSpace(*dst) != "" {
		return
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Validate rejects configs that cannot possibly run.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required (or TELEGRAM_BOT_TOKEN)")
	}
	if c.Media.MaxFileSizeMB < 0 {
		return fmt.Errorf("media.max_file_size_mb must be >= 0")
	}
	return nil
}
