package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// MaxDownloadBytes caps inbound media pulled from the gateway.
const MaxDownloadBytes = 64 << 20

// DownloadMedia fetches an inbound media URL served by the gateway. The body is read
// in full, bounded by MaxDownloadBytes.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.MediaTimeout*4)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", &StatusError{Code: http.StatusBadRequest, Body: err.Error()}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrGone
	case resp.StatusCode >= 500:
		return nil, "", fmt.Errorf("%w: media status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, "", &StatusError{Code: resp.StatusCode, Body: "media download refused"}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if len(data) > MaxDownloadBytes {
		return nil, "", &StatusError{Code: http.StatusRequestEntityTooLarge, Body: "media exceeds download limit"}
	}
	return data, resp.Header.Get("Content-Type"), nil
}
