package publish

import "context"

// Target names. The registry preserves this order for listing and dispatch.
const (
	NameTikTok    = "TikTok"
	NameTwitter   = "Twitter"
	NameFacebook  = "Facebook"
	NameInstagram = "Instagram"
	NameLinkedIn  = "LinkedIn"
	NameYouTube   = "YouTube"
	NameTumblr    = "Tumblr"
	NameTelegram  = "Telegram"
)

// Asset points at a downloaded media file. The bytes stay on disk and are
// owned by the session that produced them; targets only read the file.
type Asset struct {
	Path string
	Name string
	Size int64 // bytes, measured at download time
}

func (a Asset) SizeMB() float64 { return float64(a.Size) / (1024 * 1024) }

// Limits declares a target's payload constraints. Zero means unenforced.
type Limits struct {
	MaxPayloadMB  int
	MaxCaptionLen int
}

// Target is one publishing destination. Implementations are stateless with
// respect to requests; the only long-lived state is credentials.
//
// Available must be a pure function of configuration (no network calls).
// Publish returns nil on success or a classified *Error.
type Target interface {
	Name() string
	Available() bool
	Limits() Limits
	Publish(ctx context.Context, asset Asset, caption string) error
}

// precheck applies the shared gate every adapter runs before touching its
// platform: credentials present, payload within the declared ceiling.
func precheck(t Target, asset Asset) error {
	if !t.Available() {
		return CredentialMissing(t.Name())
	}
	lim := t.Limits()
	if lim.MaxPayloadMB > 0 && asset.SizeMB() > float64(lim.MaxPayloadMB) {
		return PayloadTooLarge(t.Name(), asset.SizeMB(), lim.MaxPayloadMB)
	}
	return nil
}

// clipCaption enforces a target's caption ceiling. Truncation is silent and
// deterministic: the first n characters are kept.
func clipCaption(caption string, n int) string {
	if n <= 0 {
		return caption
	}
	r := []rune(caption)
	if len(r) <= n {
		return caption
	}
	return string(r[:n])
}
