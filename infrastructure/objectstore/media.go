package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"mime"
	"os/exec"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// AttachmentKey builds chat/{tenant}/attachments/{uuid}.{ext}.
func AttachmentKey(tenant, filename, contentType string) string {
	return fmt.Sprintf("%s%s%s", TenantPrefix(tenant), uuid.NewString(), Extension(filename, contentType))
}

func TenantPrefix(tenant string) string {
	return "chat/" + tenant + "/attachments/"
}

// BelongsTo reports whether key sits under the tenant prefix and does not climb out of it.
func BelongsTo(tenant, key string) bool {
	return tenant != "" && strings.HasPrefix(key, TenantPrefix(tenant)) && !strings.Contains(key, "..")
}

// Extension prefers the filename's extension, then the MIME registry.
func Extension(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	base := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	switch base {
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "image/jpeg":
		return ".jpg"
	}
	if exts, _ := mime.ExtensionsByType(base); len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// NeedsTranscode reports audio containers WhatsApp rejects as voice media.
func NeedsTranscode(contentType, key string) bool {
	ct := strings.ToLower(contentType)
	if strings.HasPrefix(ct, "audio/ogg") || strings.HasPrefix(ct, "audio/webm") {
		return true
	}
	ext := strings.ToLower(path.Ext(key))
	return strings.HasPrefix(ct, "audio/") && (ext == ".ogg" || ext == ".webm" || ext == ".oga")
}

// SiblingKey swaps the extension of key.
func SiblingKey(key, ext string) string {
	return strings.TrimSuffix(key, path.Ext(key)) + ext
}

// TranscodeToMP3 pipes in through ffmpeg.
func TranscodeToMP3(ctx context.Context, in []byte) ([]byte, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not installed: %w", err)
	}
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-loglevel", "error",
		"-i", "pipe:0", "-vn", "-acodec", "libmp3lame", "-b:a", "128k", "-f", "mp3", "pipe:1")
	cmd.Stdin = bytes.NewReader(in)
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

// Thumbnail renders a JPEG at most width pixels wide.
func Thumbnail(data []byte, width int) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	var img image.Image = src
	if src.Bounds().Dx() > width {
		img = imaging.Resize(src, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ThumbnailKey is where the thumbnail of key is stored.
func ThumbnailKey(key string) string {
	return SiblingKey(key, "") + "_thumb.jpg"
}
