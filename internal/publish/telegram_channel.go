package publish

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	logx "crosspost/pkg/logx"
)

type TelegramChannelCredentials struct {
	BotToken  string
	ChannelID string
}

// telegramChannelTarget reposts the asset into a public channel using the
// same bot identity that runs the front end. It talks Bot API over plain
// HTTP so the publish path stays independent of the inbound transport.
type telegramChannelTarget struct {
	creds  TelegramChannelCredentials
	client *http.Client
	log    logx.Logger
}

func NewTelegramChannel(creds TelegramChannelCredentials, client *http.Client, log logx.Logger) Target {
	return &telegramChannelTarget{
		creds:  creds,
		client: client,
		log:    log.With(logx.String("target", NameTelegram)),
	}
}

func (t *telegramChannelTarget) Name() string { return NameTelegram }
func (t *telegramChannelTarget) Available() bool {
	return t.creds.BotToken != "" && t.creds.ChannelID != ""
}
func (t *telegramChannelTarget) Limits() Limits { return Limits{} }

func (t *telegramChannelTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	if err := precheck(t, asset); err != nil {
		return err
	}
	t.log.Info("uploading", logx.String("file", asset.Name), logx.Float64("size_mb", asset.SizeMB()))

	url := "https://api.telegram.org/bot" + t.creds.BotToken + "/sendVideo"
	fields := map[string]string{
		"chat_id": t.creds.ChannelID,
		"caption": caption,
	}
	status, body, err := uploadForm(ctx, t.client, url, nil, fields, "video", asset)
	if err != nil {
		return Classify(NameTelegram, err)
	}

	var resp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
		Result      struct {
			MessageID int `json:"message_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return statusError(NameTelegram, status, body)
	}
	if !resp.OK {
		if resp.Description != "" {
			// Descriptions like "Forbidden: bot is not a member" carry the
			// only classification signal the Bot API gives us.
			return Classify(NameTelegram, errors.New(resp.Description))
		}
		return statusError(NameTelegram, status, body)
	}

	t.log.Info("published", logx.Int("message_id", resp.Result.MessageID))
	return nil
}
