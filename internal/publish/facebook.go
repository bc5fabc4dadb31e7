package publish

import (
	"context"
	"encoding/json"
	"net/http"

	logx "crosspost/pkg/logx"
)

type FacebookCredentials struct {
	AccessToken string
	PageID      string
}

type facebookTarget struct {
	creds  FacebookCredentials
	client *http.Client
	log    logx.Logger
}

// NewFacebook publishes a video to the configured page via the Graph API.
func NewFacebook(creds FacebookCredentials, client *http.Client, log logx.Logger) Target {
	return &facebookTarget{
		creds:  creds,
		client: client,
		log:    log.With(logx.String("target", NameFacebook)),
	}
}

func (t *facebookTarget) Name() string { return NameFacebook }
func (t *facebookTarget) Available() bool {
	return t.creds.AccessToken != "" && t.creds.PageID != ""
}
func (t *facebookTarget) Limits() Limits { return Limits{MaxPayloadMB: 4000} }

func (t *facebookTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	if err := precheck(t, asset); err != nil {
		return err
	}
	t.log.Info("uploading", logx.String("file", asset.Name), logx.Float64("size_mb", asset.SizeMB()))

	url := "https://graph.facebook.com/v19.0/" + t.creds.PageID + "/videos"
	fields := map[string]string{
		"access_token": t.creds.AccessToken,
		"description":  caption,
	}
	status, body, err := uploadForm(ctx, t.client, url, nil, fields, "source", asset)
	if err != nil {
		return Classify(NameFacebook, err)
	}
	if status != http.StatusOK {
		return statusError(NameFacebook, status, body)
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ID == "" {
		return Rejected(NameFacebook, "response missing video id")
	}

	t.log.Info("published", logx.String("video_id", resp.ID))
	return nil
}
