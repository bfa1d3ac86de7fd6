package objectstore

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentKey(t *testing.T) {
	key := AttachmentKey("acme", "Voice Note.OGG", "audio/ogg")
	assert.True(t, strings.HasPrefix(key, "chat/acme/attachments/"))
	assert.True(t, strings.HasSuffix(key, ".ogg"))
	assert.True(t, BelongsTo("acme", key))
	assert.False(t, BelongsTo("other", key))
	assert.False(t, BelongsTo("acme", "chat/acme/attachments/../../other/x.png"))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", Extension("boleto.pdf", "application/pdf"))
	assert.Equal(t, ".jpg", Extension("", "image/jpeg"))
	assert.Equal(t, ".mp3", Extension("", "audio/mpeg"))
	assert.Equal(t, ".bin", Extension("", "application/x-unknown-thing"))
}

func TestNeedsTranscode(t *testing.T) {
	assert.True(t, NeedsTranscode("audio/ogg; codecs=opus", "k.ogg"))
	assert.True(t, NeedsTranscode("audio/webm", "k.webm"))
	assert.False(t, NeedsTranscode("audio/mpeg", "k.mp3"))
	assert.False(t, NeedsTranscode("image/png", "k.png"))
	assert.Equal(t, "chat/t/attachments/a.mp3", SiblingKey("chat/t/attachments/a.ogg", ".mp3"))
	assert.Equal(t, "chat/t/attachments/a_thumb.jpg", ThumbnailKey("chat/t/attachments/a.png"))
}

func TestThumbnail_ResizesWideImages(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 800, 400))
	for x := 0; x < 800; x++ {
		src.Set(x, 10, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	out, err := Thumbnail(buf.Bytes(), 320)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("engage")

	info, err := m.Put(ctx, "chat/t/attachments/a.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.NotEmpty(t, info.ETag)

	rc, err := m.Get(ctx, "chat/t/attachments/a.txt")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "hello", string(b))

	u, err := m.PresignGet(ctx, "chat/t/attachments/a.txt", 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, "expires=900")

	require.NoError(t, m.Remove(ctx, "chat/t/attachments/a.txt"))
	_, err = m.Stat(ctx, "chat/t/attachments/a.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}
