package bot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"crosspost/internal/publish"
	"crosspost/internal/transport"
)

var defaultFormats = []string{"mp4", "mov", "avi", "mkv"}

// validateVideo gates an attachment before we spend bandwidth downloading
// it. Size comes from the Telegram metadata; the format check is by file
// extension.
func validateVideo(v *transport.Video, maxMB int, formats []string) error {
	if maxMB > 0 && float64(v.Size)/(1024*1024) > float64(maxMB) {
		return fmt.Errorf("file too large: %.1fMB (max %dMB)", float64(v.Size)/(1024*1024), maxMB)
	}
	if len(formats) == 0 {
		formats = defaultFormats
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(v.FileName)), ".")
	if ext == "" {
		// Telegram videos without a name are mp4 re-encodes.
		return nil
	}
	for _, f := range formats {
		if ext == strings.ToLower(f) {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (supported: %s)", ext, strings.Join(formats, ", "))
}

// downloadAsset fetches the attachment into the temp dir under a unique
// name and measures it. The caller's session takes ownership of the file.
func downloadAsset(ctx context.Context, ad transport.Adapter, v *transport.Video, dir string) (publish.Asset, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return publish.Asset{}, err
	}
	name := v.FileName
	if name == "" {
		name = "video.mp4"
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, "asset_"+uuid.NewString()+ext)

	if err := ad.DownloadFile(ctx, v.FileID, path); err != nil {
		_ = os.Remove(path)
		return publish.Asset{}, fmt.Errorf("download: %w", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		_ = os.Remove(path)
		return publish.Asset{}, err
	}
	return publish.Asset{Path: path, Name: name, Size: fi.Size()}, nil
}

func removeAsset(a publish.Asset) {
	if a.Path != "" {
		_ = os.Remove(a.Path)
	}
}
