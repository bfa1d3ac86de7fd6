package gateway

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadMedia(t *testing.T) {
	swapTransport(t, func(req *http.Request) (*http.Response, error) {
		switch req.URL.Path {
		case "/media/ok":
			resp := jsonResponse(200, "JPEGDATA")
			resp.Header.Set("Content-Type", "image/jpeg")
			return resp, nil
		case "/media/gone":
			return jsonResponse(404, ""), nil
		case "/media/broken":
			return jsonResponse(502, ""), nil
		}
		return jsonResponse(403, ""), nil
	})
	c := testClient()
	ctx := context.Background()

	data, ct, err := c.DownloadMedia(ctx, "https://cdn.test/media/ok")
	require.NoError(t, err)
	assert.Equal(t, "JPEGDATA", string(data))
	assert.Equal(t, "image/jpeg", ct)

	_, _, err = c.DownloadMedia(ctx, "https://cdn.test/media/gone")
	assert.ErrorIs(t, err, ErrGone)

	_, _, err = c.DownloadMedia(ctx, "https://cdn.test/media/broken")
	assert.True(t, IsTransient(err))

	_, _, err = c.DownloadMedia(ctx, "https://cdn.test/media/forbidden")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 403, se.Code)
}
