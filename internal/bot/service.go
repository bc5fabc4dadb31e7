package bot

import (
	"context"
	"errors"
	"strings"

	"crosspost/internal/orchestrator"
	"crosspost/internal/publish"
	"crosspost/internal/storage"
	"crosspost/internal/transport"
	logx "crosspost/pkg/logx"
	"crosspost/pkg/tgui"
)

const (
	cbConfirm = "publish:confirm"
	cbCancel  = "publish:cancel"
)

type Config struct {
	// Owners restricts the bot to these user ids. Empty means open to
	// anyone who can message the bot.
	Owners        []int64
	TempDir       string
	MaxFileSizeMB int
	Formats       []string
}

// Bot is the operator-facing front end: it validates inbound video
// messages, renders previews and summaries, and forwards confirmed or
// cancelled intents to the orchestrator.
type Bot struct {
	cfg   Config
	ad    transport.Adapter
	ctrl  *orchestrator.Controller
	reg   *publish.Registry
	store storage.Store // nil disables prefs/stats persistence
	log   logx.Logger
}

func New(cfg Config, ad transport.Adapter, ctrl *orchestrator.Controller, reg *publish.Registry, store storage.Store, log logx.Logger) *Bot {
	if cfg.TempDir == "" {
		cfg.TempDir = "./tmp"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{cfg: cfg, ad: ad, ctrl: ctrl, reg: reg, store: store, log: log}
}

// Run consumes updates until ctx ends. Each update is handled on its own
// goroutine so one requester's dispatch never blocks another's commands.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go b.handleUpdate(ctx, up)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, up transport.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			b.log.Error("update handler panic", logx.Any("panic", rec))
		}
	}()

	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			b.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			b.handleCallback(ctx, up.Callback)
		}
	}
}

func (b *Bot) authorized(fromID int64) bool {
	if len(b.cfg.Owners) == 0 {
		return true
	}
	for _, id := range b.cfg.Owners {
		if id == fromID {
			return true
		}
	}
	return false
}

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) {
	if !b.authorized(m.FromID) {
		b.log.Warn("unauthorized message ignored",
			logx.Int64("from", m.FromID), logx.String("username", m.FromUsername))
		b.reply(ctx, m.ChatID, "⛔ This bot is private.")
		return
	}
	if m.Video != nil {
		b.handleVideo(ctx, m)
		return
	}
	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, m, strings.ToLower(strings.Fields(text)[0]))
		return
	}
	b.reply(ctx, m.ChatID, "💡 Send me a video with a caption to get started!\n\nUse /help for more.")
}

func (b *Bot) handleCommand(ctx context.Context, m *transport.Message, cmd string) {
	switch cmd {
	case "/start":
		b.reply(ctx, m.ChatID, welcomeMessage)
	case "/help":
		b.reply(ctx, m.ChatID, helpMessage)
	case "/mock":
		prefs := b.prefs(ctx, m.FromID)
		prefs.MockMode = !prefs.MockMode
		b.putPrefs(ctx, m.FromID, prefs)
		if prefs.MockMode {
			b.reply(ctx, m.ChatID, "🧪 Simulated mode: on\n\n⚠️ Posts will be simulated, not real.")
		} else {
			b.reply(ctx, m.ChatID, "🚀 Simulated mode: off\n\n✅ Posts will be real!")
		}
	case "/auto":
		prefs := b.prefs(ctx, m.FromID)
		prefs.AutoPublish = !prefs.AutoPublish
		b.putPrefs(ctx, m.FromID, prefs)
		if prefs.AutoPublish {
			b.reply(ctx, m.ChatID, "🤖 Auto-publish: on\n\n⚡ Posts go out without confirmation.")
		} else {
			b.reply(ctx, m.ChatID, "👤 Auto-publish: off\n\n✋ Posts need manual confirmation.")
		}
	case "/status":
		prefs := b.prefs(ctx, m.FromID)
		count := 0
		var global storage.Stats
		if b.store != nil {
			if n, err := b.store.CountPosts(ctx, m.FromID); err == nil {
				count = n
			}
			if st, err := b.store.Stats(ctx); err == nil {
				global = st
			}
		}
		b.reply(ctx, m.ChatID, statusMessage(prefs, b.reg.Availability(), b.reg.List(), count, global))
	case "/history":
		if b.store == nil {
			b.reply(ctx, m.ChatID, "📭 History is unavailable: persistence is not configured.")
			return
		}
		posts, err := b.store.RecentPosts(ctx, m.FromID, 5)
		if err != nil {
			b.log.Warn("history load failed", logx.Int64("requester", m.FromID), logx.Err(err))
			b.reply(ctx, m.ChatID, "❌ Could not load your history.")
			return
		}
		b.reply(ctx, m.ChatID, historyMessage(posts))
	default:
		b.reply(ctx, m.ChatID, "Unknown command. Use /help.")
	}
}

func (b *Bot) handleVideo(ctx context.Context, m *transport.Message) {
	caption := strings.TrimSpace(m.Text)
	if caption == "" {
		b.reply(ctx, m.ChatID, "❌ A caption is required. Send the video again with text.")
		return
	}
	if err := validateVideo(m.Video, b.cfg.MaxFileSizeMB, b.cfg.Formats); err != nil {
		b.reply(ctx, m.ChatID, "❌ "+err.Error())
		return
	}

	asset, err := downloadAsset(ctx, b.ad, m.Video, b.cfg.TempDir)
	if err != nil {
		b.log.Error("asset download failed", logx.Int64("requester", m.FromID), logx.Err(err))
		b.reply(ctx, m.ChatID, "❌ Could not download the video. Please try again.")
		return
	}

	prefs := b.prefs(ctx, m.FromID)
	candidates := prefs.PreferredTargets
	if len(candidates) == 0 {
		candidates = b.reg.List()
	}

	sess, err := b.ctrl.Begin(ctx, m.FromID, asset, caption, candidates, prefs.MockMode)
	switch {
	case errors.Is(err, orchestrator.ErrNoTargetsAvailable):
		removeAsset(asset)
		b.reply(ctx, m.ChatID, "❌ No targets are available. Check the credential configuration.")
		return
	case errors.Is(err, orchestrator.ErrSessionBusy):
		removeAsset(asset)
		b.reply(ctx, m.ChatID, "⏳ You already have a pending post. Confirm or cancel it first.")
		return
	case err != nil:
		removeAsset(asset)
		b.log.Error("begin session failed", logx.Int64("requester", m.FromID), logx.Err(err))
		b.reply(ctx, m.ChatID, "❌ Something went wrong. Please try again.")
		return
	}

	if prefs.AutoPublish {
		ref, err := b.ad.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID}, "🔄 Publishing...", nil)
		if err != nil {
			b.log.Warn("send failed", logx.Err(err))
		}
		b.confirm(ctx, m.FromID, ref)
		return
	}

	markup := tgui.InlineConfirm("✅ Publish", cbConfirm, "❌ Cancel", cbCancel)
	_, err = b.ad.SendText(ctx, transport.ChatTarget{ChatID: m.ChatID},
		previewMessage(sess), &transport.SendOptions{ReplyMarkup: markup})
	if err != nil {
		b.log.Warn("preview send failed", logx.Int64("requester", m.FromID), logx.Err(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) {
	if !b.authorized(cb.FromID) {
		_ = b.ad.AnswerCallback(ctx, cb.ID, "Not allowed")
		return
	}
	_ = b.ad.AnswerCallback(ctx, cb.ID, "")
	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}

	switch cb.Data {
	case cbConfirm:
		b.edit(ctx, ref, "🔄 Publishing...")
		b.confirm(ctx, cb.FromID, ref)
	case cbCancel:
		if err := b.ctrl.Cancel(ctx, cb.FromID); errors.Is(err, orchestrator.ErrSessionBusy) {
			_ = b.ad.AnswerCallback(ctx, cb.ID, "Already processing")
			return
		}
		b.edit(ctx, ref, "❌ Publishing cancelled")
	default:
		b.log.Warn("unknown callback", logx.String("data", cb.Data))
	}
}

// confirm runs the orchestrator's confirm flow and replaces the progress
// message with the aggregated summary.
func (b *Bot) confirm(ctx context.Context, requesterID int64, ref transport.MessageRef) {
	rec, err := b.ctrl.Confirm(ctx, requesterID)
	switch {
	case errors.Is(err, orchestrator.ErrNoActiveSession):
		b.edit(ctx, ref, "❌ Session expired. Send the video again.")
		return
	case errors.Is(err, orchestrator.ErrSessionBusy):
		b.edit(ctx, ref, "⏳ Already publishing; hold on.")
		return
	case err != nil:
		b.log.Error("confirm failed", logx.Int64("requester", requesterID), logx.Err(err))
		b.edit(ctx, ref, "❌ Publishing failed. Please try again.")
		return
	}
	b.edit(ctx, ref, summaryMessage(rec))
}

func (b *Bot) prefs(ctx context.Context, requesterID int64) storage.Prefs {
	if b.store == nil {
		return storage.DefaultPrefs()
	}
	p, err := b.store.GetPrefs(ctx, requesterID)
	if err != nil {
		b.log.Warn("prefs load failed; using defaults", logx.Int64("requester", requesterID), logx.Err(err))
		return storage.DefaultPrefs()
	}
	return p
}

func (b *Bot) putPrefs(ctx context.Context, requesterID int64, p storage.Prefs) {
	if b.store == nil {
		return
	}
	if err := b.store.PutPrefs(ctx, requesterID, p); err != nil {
		b.log.Warn("prefs save failed", logx.Int64("requester", requesterID), logx.Err(err))
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.ad.SendText(ctx, transport.ChatTarget{ChatID: chatID}, tgui.Clip(text), nil)
	if err != nil {
		b.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

func (b *Bot) edit(ctx context.Context, ref transport.MessageRef, text string) {
	if ref.MessageID == 0 {
		return
	}
	if err := b.ad.EditText(ctx, ref, tgui.Clip(text), nil); err != nil {
		b.log.Warn("edit failed", logx.Int("message", ref.MessageID), logx.Err(err))
	}
}
