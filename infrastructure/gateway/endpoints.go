package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

type messageKey struct {
	RemoteJID string `json:"remoteJid,omitempty"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

type sendResponse struct {
	Key       messageKey `json:"key"`
	MessageID string     `json:"messageId"`
}

func (r sendResponse) id() string {
	if r.Key.ID != "" {
		return r.Key.ID
	}
	return r.MessageID
}

func path(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *Client) SendText(ctx context.Context, t Target, to, text string) (string, error) {
	var out sendResponse
	err := c.do(ctx, t, call{
		method: http.MethodPost,
		path:   "/message/sendText" + path(t.InstanceName),
		body:   map[string]any{"number": to, "text": text},
		out:    &out,
	})
	if err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", errors.New("gateway: sendText returned no message id")
	}
	return out.id(), nil
}

func (c *Client) SendMedia(ctx context.Context, t Target, to, mediaURL, caption string, kind MediaKind) (string, error) {
	body := map[string]any{
		"number":    to,
		"mediaUrl":  mediaURL,
		"media":     mediaURL,
		"kind":      kind,
		"mediatype": kind,
	}
	if caption != "" {
		body["caption"] = caption
	}
	var out sendResponse
	err := c.do(ctx, t, call{
		method:  http.MethodPost,
		path:    "/message/sendMedia" + path(t.InstanceName),
		body:    body,
		timeout: c.cfg.MediaTimeout,
		out:     &out,
	})
	if err != nil {
		return "", err
	}
	if out.id() == "" {
		return "", errors.New("gateway: sendMedia returned no message id")
	}
	return out.id(), nil
}

// SendReaction with an empty emoji removes the reaction upstream.
func (c *Client) SendReaction(ctx context.Context, t Target, remoteJID, messageID string, fromMe bool, emoji string) error {
	return c.do(ctx, t, call{
		method: http.MethodPost,
		path:   "/message/sendReaction" + path(t.InstanceName),
		body: map[string]any{
			"key":      messageKey{RemoteJID: remoteJID, ID: messageID, FromMe: fromMe},
			"reaction": emoji,
		},
	})
}

func (c *Client) MarkRead(ctx context.Context, t Target, keys []ReadKey) error {
	if len(keys) == 0 {
		return nil
	}
	return c.do(ctx, t, call{
		method: http.MethodPost,
		path:   "/chat/markMessageAsRead" + path(t.InstanceName),
		body:   map[string]any{"readMessages": keys},
	})
}

func (c *Client) DeleteForEveryone(ctx context.Context, t Target, remoteJID, messageID string, fromMe bool) error {
	return c.do(ctx, t, call{
		method: http.MethodDelete,
		path:   "/chat/deleteMessageForEveryone" + path(t.InstanceName),
		body:   map[string]any{"id": messageID, "remoteJid": remoteJID, "fromMe": fromMe},
	})
}

func (c *Client) FindGroupInfo(ctx context.Context, t Target, groupJID string, withParticipants bool) (*GroupInfo, error) {
	q := url.Values{}
	q.Set("groupJid", groupJID)
	if withParticipants {
		q.Set("getParticipants", "true")
	}
	var out GroupInfo
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/group/findGroupInfos" + path(t.InstanceName) + "?" + q.Encode(),
		out:    &out,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FetchAllGroups(ctx context.Context, t Target) ([]GroupSummary, error) {
	var out []GroupSummary
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/group/fetchAllGroups" + path(t.InstanceName) + "?getParticipants=false",
		out:    &out,
	})
	return out, err
}

func (c *Client) FetchParticipants(ctx context.Context, t Target, groupJID string) ([]Participant, error) {
	var out struct {
		Participants []Participant `json:"participants"`
	}
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/group/participants" + path(t.InstanceName) + "?groupJid=" + url.QueryEscape(groupJID),
		out:    &out,
	})
	return out.Participants, err
}

// FetchProfilePicture returns ErrGone when the number has no visible picture.
func (c *Client) FetchProfilePicture(ctx context.Context, t Target, phone string) (string, error) {
	var out struct {
		ProfilePictureURL string `json:"profilePictureUrl"`
	}
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/chat/fetchProfilePictureUrl" + path(t.InstanceName) + "?number=" + url.QueryEscape(strings.TrimPrefix(phone, "+")),
		out:    &out,
	})
	if err != nil {
		return "", err
	}
	if out.ProfilePictureURL == "" {
		return "", ErrGone
	}
	return out.ProfilePictureURL, nil
}

// FetchPushname returns "" when the gateway knows no name for phone.
func (c *Client) FetchPushname(ctx context.Context, t Target, phone string) (string, error) {
	var out []struct {
		Exists   bool   `json:"exists"`
		Number   string `json:"number"`
		Name     string `json:"name"`
		Pushname string `json:"pushname"`
	}
	err := c.do(ctx, t, call{
		method: http.MethodPost,
		path:   "/chat/whatsappNumbers" + path(t.InstanceName),
		body:   map[string]any{"numbers": []string{strings.TrimPrefix(phone, "+")}},
		out:    &out,
	})
	if errors.Is(err, ErrGone) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	for _, n := range out {
		if n.Pushname != "" {
			return n.Pushname, nil
		}
		if n.Name != "" {
			return n.Name, nil
		}
	}
	return "", nil
}

func (c *Client) ConnectionState(ctx context.Context, t Target) (string, error) {
	var out struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
		State string `json:"state"`
	}
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/instance/connectionState" + path(t.InstanceName),
		out:    &out,
	})
	if err != nil {
		return "", err
	}
	if out.Instance.State != "" {
		return out.Instance.State, nil
	}
	if out.State != "" {
		return out.State, nil
	}
	return StateClose, nil
}

// Connect returns the pairing QR as base64.
func (c *Client) Connect(ctx context.Context, t Target) (string, error) {
	var out struct {
		Base64 string `json:"base64"`
		Code   string `json:"code"`
	}
	err := c.do(ctx, t, call{
		method: http.MethodGet,
		path:   "/instance/connect" + path(t.InstanceName),
		out:    &out,
	})
	return out.Base64, err
}

// CreateInstance registers name upstream with the master key and returns the instance api key.
func (c *Client) CreateInstance(ctx context.Context, name, webhookURL string, events []string) (string, error) {
	var out struct {
		Instance struct {
			APIKey string `json:"apikey"`
		} `json:"instance"`
		Hash json.RawMessage `json:"hash"`
	}
	err := c.do(ctx, Target{}, call{
		method: http.MethodPost,
		path:   "/instance/create",
		body: map[string]any{
			"instanceName": name,
			"qrcode":       true,
			"integration":  "WHATSAPP-BAILEYS",
			"webhook": map[string]any{
				"url":    webhookURL,
				"events": events,
			},
		},
		out: &out,
	})
	if err != nil {
		return "", err
	}
	if out.Instance.APIKey != "" {
		return out.Instance.APIKey, nil
	}
	return hashKey(out.Hash), nil
}

// hashKey accepts both {"hash":"k"} and {"hash":{"apikey":"k"}}.
func hashKey(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj struct {
		APIKey string `json:"apikey"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return obj.APIKey
	}
	return ""
}

func (c *Client) Logout(ctx context.Context, t Target) error {
	return c.do(ctx, t, call{method: http.MethodDelete, path: "/instance/logout" + path(t.InstanceName)})
}

func (c *Client) DeleteInstance(ctx context.Context, t Target) error {
	return c.do(ctx, t, call{method: http.MethodDelete, path: "/instance/delete" + path(t.InstanceName)})
}
