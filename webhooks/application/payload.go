package application

import (
	"strconv"
	"strings"
	"time"
)

// Helpers over the loosely typed gateway payload.

func mapAt(m map[string]any, path ...string) map[string]any {
	cur := m
	for _, k := range path {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func str(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func boolean(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	}
	return false
}

// firstStr returns the first non-empty value among keys.
func firstStr(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := str(m, k); v != "" {
			return v
		}
	}
	return ""
}

// unixTime reads a seconds timestamp sent as a number or a numeric string.
func unixTime(m map[string]any, key string) time.Time {
	if m == nil {
		return time.Time{}
	}
	var sec int64
	switch v := m[key].(type) {
	case float64:
		sec = int64(v)
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return time.Time{}
		}
		sec = n
	default:
		return time.Time{}
	}
	if sec <= 0 {
		return time.Time{}
	}
	// some gateway builds send milliseconds
	if sec > 1e12 {
		return time.UnixMilli(sec).UTC()
	}
	return time.Unix(sec, 0).UTC()
}

// items returns data as a list of objects. Gateways send one object or an array.
func items(payload map[string]any) []map[string]any {
	switch v := payload["data"].(type) {
	case map[string]any:
		if list, ok := v["messages"].([]any); ok {
			return objects(list)
		}
		return []map[string]any{v}
	case []any:
		return objects(v)
	}
	return nil
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// mediaTypes are the message keys that carry a downloadable file.
var mediaTypes = []string{"imageMessage", "videoMessage", "audioMessage", "documentMessage", "stickerMessage", "documentWithCaptionMessage"}

// content is the parsed body of a messages.upsert item.
type content struct {
	kind     string
	text     string
	mediaURL string
	mimeType string
	filename string
	media    bool
}

func parseContent(item map[string]any) content {
	msg := mapAt(item, "message")
	c := content{kind: str(item, "messageType")}
	if msg == nil {
		return c
	}
	if v := str(msg, "conversation"); v != "" {
		c.text = v
		if c.kind == "" {
			c.kind = "conversation"
		}
	}
	if ext := mapAt(msg, "extendedTextMessage"); ext != nil {
		c.text = str(ext, "text")
		if c.kind == "" {
			c.kind = "extendedTextMessage"
		}
	}
	for _, t := range mediaTypes {
		media := mapAt(msg, t)
		if media == nil {
			continue
		}
		if inner := mapAt(media, "message", "documentMessage"); inner != nil {
			media = inner
		}
		c.media = true
		if c.kind == "" {
			c.kind = t
		}
		if c.text == "" {
			c.text = str(media, "caption")
		}
		c.mediaURL = str(media, "url")
		c.mimeType = firstStr(media, "mimetype", "mimeType")
		c.filename = firstStr(media, "fileName", "title")
		break
	}
	// gateways with object storage enabled hand out their own copy
	if u := str(item, "mediaUrl"); u != "" && c.media {
		c.mediaURL = u
	}
	return c
}
