package publish

import (
	"context"
	"time"

	logx "crosspost/pkg/logx"
)

// The four targets below have no finished upload integration yet: their
// platform APIs need an app-review process before write access is granted.
// They still enforce their real payload ceilings and credential checks, and
// simulate the upload itself.
//
// TODO: replace the simulated upload for TikTok with the Content Posting
// API once the app review completes.

type TikTokCredentials struct {
	ClientKey    string
	ClientSecret string
	AccessToken  string
}

type InstagramCredentials struct {
	AccessToken       string
	BusinessAccountID string
}

type LinkedInCredentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
}

type YouTubeCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type simTarget struct {
	name   string
	limits Limits
	ok     bool
	delay  time.Duration
	log    logx.Logger
}

func NewTikTok(creds TikTokCredentials, log logx.Logger) Target {
	return &simTarget{
		name:   NameTikTok,
		limits: Limits{MaxPayloadMB: 287},
		ok:     creds.AccessToken != "",
		delay:  2 * time.Second,
		log:    log.With(logx.String("target", NameTikTok)),
	}
}

func NewInstagram(creds InstagramCredentials, log logx.Logger) Target {
	return &simTarget{
		name:   NameInstagram,
		limits: Limits{MaxPayloadMB: 100},
		ok:     creds.AccessToken != "" && creds.BusinessAccountID != "",
		delay:  2 * time.Second,
		log:    log.With(logx.String("target", NameInstagram)),
	}
}

func NewLinkedIn(creds LinkedInCredentials, log logx.Logger) Target {
	return &simTarget{
		name:   NameLinkedIn,
		limits: Limits{MaxPayloadMB: 200},
		ok:     creds.AccessToken != "",
		delay:  2 * time.Second,
		log:    log.With(logx.String("target", NameLinkedIn)),
	}
}

func NewYouTube(creds YouTubeCredentials, log logx.Logger) Target {
	return &simTarget{
		name:   NameYouTube,
		limits: Limits{MaxPayloadMB: 1000},
		ok:     creds.RefreshToken != "",
		delay:  3 * time.Second,
		log:    log.With(logx.String("target", NameYouTube)),
	}
}

func (t *simTarget) Name() string    { return t.name }
func (t *simTarget) Available() bool { return t.ok }
func (t *simTarget) Limits() Limits  { return t.limits }

func (t *simTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	if err := precheck(t, asset); err != nil {
		return err
	}
	t.log.Info("uploading", logx.String("file", asset.Name), logx.Float64("size_mb", asset.SizeMB()))

	select {
	case <-ctx.Done():
		return Classify(t.name, ctx.Err())
	case <-time.After(t.delay):
	}

	t.log.Info("published (simulated upload)")
	return nil
}
