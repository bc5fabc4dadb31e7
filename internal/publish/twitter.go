package publish

import (
	"context"
	"encoding/json"
	"net/http"

	logx "crosspost/pkg/logx"
)

type TwitterCredentials struct {
	AccessToken string // OAuth2 user-context token with tweet.write + media.write
}

type twitterTarget struct {
	creds  TwitterCredentials
	client *http.Client
	log    logx.Logger
}

// NewTwitter publishes a video tweet: media upload first, then tweet
// creation referencing the media id.
func NewTwitter(creds TwitterCredentials, client *http.Client, log logx.Logger) Target {
	return &twitterTarget{
		creds:  creds,
		client: client,
		log:    log.With(logx.String("target", NameTwitter)),
	}
}

func (t *twitterTarget) Name() string    { return NameTwitter }
func (t *twitterTarget) Available() bool { return t.creds.AccessToken != "" }
func (t *twitterTarget) Limits() Limits  { return Limits{MaxPayloadMB: 512, MaxCaptionLen: 280} }

func (t *twitterTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	if err := precheck(t, asset); err != nil {
		return err
	}
	caption = clipCaption(caption, t.Limits().MaxCaptionLen)
	t.log.Info("uploading media", logx.String("file", asset.Name), logx.Float64("size_mb", asset.SizeMB()))

	auth := map[string]string{"Authorization": "Bearer " + t.creds.AccessToken}

	status, body, err := uploadForm(ctx, t.client, "https://api.x.com/2/media/upload", auth,
		map[string]string{"media_category": "tweet_video"}, "media", asset)
	if err != nil {
		return Classify(NameTwitter, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return statusError(NameTwitter, status, body)
	}

	var up struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &up); err != nil || up.Data.ID == "" {
		return Rejected(NameTwitter, "media upload response missing media id")
	}

	payload := map[string]any{
		"text":  caption,
		"media": map[string]any{"media_ids": []string{up.Data.ID}},
	}
	status, body, err = postJSON(ctx, t.client, "https://api.x.com/2/tweets", auth, payload)
	if err != nil {
		return Classify(NameTwitter, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return statusError(NameTwitter, status, body)
	}

	var tw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &tw); err != nil || tw.Data.ID == "" {
		return Rejected(NameTwitter, "tweet response missing id")
	}

	t.log.Info("published", logx.String("tweet_id", tw.Data.ID))
	return nil
}
