package publish

import (
	"context"
	"encoding/json"
	"net/http"

	logx "crosspost/pkg/logx"
)

type TumblrCredentials struct {
	AccessToken string
	BlogName    string
}

type tumblrTarget struct {
	creds  TumblrCredentials
	client *http.Client
	log    logx.Logger
}

func NewTumblr(creds TumblrCredentials, client *http.Client, log logx.Logger) Target {
	return &tumblrTarget{
		creds:  creds,
		client: client,
		log:    log.With(logx.String("target", NameTumblr)),
	}
}

func (t *tumblrTarget) Name() string { return NameTumblr }
func (t *tumblrTarget) Available() bool {
	return t.creds.AccessToken != "" && t.creds.BlogName != ""
}
func (t *tumblrTarget) Limits() Limits { return Limits{MaxPayloadMB: 100} }

func (t *tumblrTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	if err := precheck(t, asset); err != nil {
		return err
	}
	t.log.Info("uploading", logx.String("file", asset.Name), logx.Float64("size_mb", asset.SizeMB()))

	url := "https://api.tumblr.com/v2/blog/" + t.creds.BlogName + "/post"
	headers := map[string]string{"Authorization": "Bearer " + t.creds.AccessToken}
	fields := map[string]string{
		"type":    "video",
		"caption": caption,
	}
	status, body, err := uploadForm(ctx, t.client, url, headers, fields, "data", asset)
	if err != nil {
		return Classify(NameTumblr, err)
	}

	// Tumblr wraps the real status in the body's meta object.
	var resp struct {
		Meta struct {
			Status int    `json:"status"`
			Msg    string `json:"msg"`
		} `json:"meta"`
		Response struct {
			ID json.Number `json:"id"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return statusError(NameTumblr, status, body)
	}
	if resp.Meta.Status != http.StatusCreated {
		return statusError(NameTumblr, resp.Meta.Status, body)
	}

	t.log.Info("published", logx.String("post_id", resp.Response.ID.String()))
	return nil
}
