package bot

import (
	"fmt"
	"sort"
	"strings"

	"crosspost/internal/orchestrator"
	"crosspost/internal/storage"
)

const welcomeMessage = `🤖 Welcome to the cross-posting bot!

Send me a video with a caption and I will publish it to every configured
network: TikTok, Twitter/X, Facebook, Instagram, LinkedIn, YouTube,
Tumblr and a Telegram channel.

📤 Just send a video + caption to get started.
Use /help for details.`

const helpMessage = `ℹ️ How it works:

1. Send a video (mp4/mov/avi/mkv) with a caption.
2. I show you a preview.
3. Confirm, and the video goes out to every available network.

Settings:
/mock — toggle simulated mode (no real publishing)
/auto — toggle auto-publish (skip the confirmation step)
/status — availability and stats
/history — your recent posts`

// previewMessage renders the confirm prompt for a pending session.
func previewMessage(sess orchestrator.Session) string {
	var b strings.Builder
	b.WriteString("📋 Ready to publish\n\n")
	fmt.Fprintf(&b, "📁 %s\n", sess.Asset.Name)
	fmt.Fprintf(&b, "📝 %s\n\n", storage.CaptionPreview(sess.Caption))
	fmt.Fprintf(&b, "🌐 Targets (%d): %s\n", len(sess.Targets), strings.Join(sess.Targets, ", "))
	if sess.Simulated {
		b.WriteString("🧪 Simulated mode: no real posts will be made\n")
	}
	return b.String()
}

// summaryMessage renders the final aggregated result of one post.
func summaryMessage(p *storage.Post) string {
	switch p.Status {
	case storage.StatusCancelled:
		return "❌ Publishing cancelled"
	case storage.StatusCompleted:
		if p.Simulated {
			return fmt.Sprintf("🧪 Simulated publish completed for %d target(s)", len(p.Targets))
		}
		return fmt.Sprintf("✅ Published to all %d target(s): %s", len(p.Targets), strings.Join(p.Targets, ", "))
	}

	ok, failed := partitionOutcomes(p)
	switch p.Status {
	case storage.StatusFailed:
		var b strings.Builder
		b.WriteString("❌ Publishing failed on every target:\n")
		for _, name := range failed {
			fmt.Fprintf(&b, "  • %s — %s\n", name, p.Outcomes[name].Detail)
		}
		return strings.TrimRight(b.String(), "\n")
	case storage.StatusPartial:
		var b strings.Builder
		fmt.Fprintf(&b, "⚠️ Published to %d of %d targets\n\n", len(ok), len(p.Targets))
		fmt.Fprintf(&b, "✅ %s\n", strings.Join(ok, ", "))
		b.WriteString("❌ Failed:\n")
		for _, name := range failed {
			fmt.Fprintf(&b, "  • %s — %s\n", name, p.Outcomes[name].Detail)
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return fmt.Sprintf("Post %s: %s", p.ID, p.Status)
	}
}

// partitionOutcomes splits the outcome set by success, preserving the
// post's target selection order.
func partitionOutcomes(p *storage.Post) (ok, failed []string) {
	ordered := append([]string(nil), p.Targets...)
	// Outcomes can name targets the record no longer lists; keep them too.
	for name := range p.Outcomes {
		if !contains(ordered, name) {
			ordered = append(ordered, name)
		}
	}
	sortTail(ordered, len(p.Targets))
	for _, name := range ordered {
		o, found := p.Outcomes[name]
		if !found {
			continue
		}
		if o.Status.OK() {
			ok = append(ok, name)
		} else {
			failed = append(failed, name)
		}
	}
	return ok, failed
}

// statusMessage renders the /status report.
func statusMessage(prefs storage.Prefs, availability map[string]bool, order []string, postCount int, global storage.Stats) string {
	available := 0
	for _, ok := range availability {
		if ok {
			available++
		}
	}

	var b strings.Builder
	b.WriteString("📊 Bot status\n\n")
	fmt.Fprintf(&b, "🧪 Simulated mode: %s\n", onOff(prefs.MockMode))
	fmt.Fprintf(&b, "🤖 Auto-publish: %s\n\n", onOff(prefs.AutoPublish))
	fmt.Fprintf(&b, "🌐 Available targets: %d/%d\n", available, len(order))
	for _, name := range order {
		mark := "❌"
		if availability[name] {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s\n", mark, name)
	}
	fmt.Fprintf(&b, "\n📈 Your posts: %d\n", postCount)
	if global.TotalPosts > 0 {
		fmt.Fprintf(&b, "🌍 All posts: %d (%d completed)\n", global.TotalPosts, global.CompletedPosts)
	}
	b.WriteString("⚙️ Settings: /mock /auto")
	return b.String()
}

// historyMessage renders the /history report.
func historyMessage(posts []storage.Post) string {
	if len(posts) == 0 {
		return "📭 No posts yet. Send a video with a caption to publish one."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🗂 Your last %d post(s):\n\n", len(posts))
	for _, p := range posts {
		fmt.Fprintf(&b, "%s %s — %s", statusMark(p.Status), p.CreatedAt.Format("2006-01-02 15:04"), p.Status)
		if p.Simulated {
			b.WriteString(" (simulated)")
		}
		fmt.Fprintf(&b, "\n    %s\n", p.CaptionPreview)
	}
	return strings.TrimRight(b.String(), "\n")
}

// statusMark maps a lifecycle status to its display glyph. Anything not yet
// terminal renders as in flight.
func statusMark(s storage.Status) string {
	if !s.Terminal() {
		return "⏳"
	}
	switch s {
	case storage.StatusPartial:
		return "⚠️"
	case storage.StatusFailed:
		return "❌"
	case storage.StatusCancelled:
		return "🚫"
	default:
		return "✅"
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// sortTail sorts only the extra names appended past the selection order so
// the rendering stays deterministic.
func sortTail(xs []string, from int) {
	if from < len(xs) {
		sort.Strings(xs[from:])
	}
}
