package gateway

// Target is an instance plus the credentials to reach it. Empty fields fall back to the
// master base URL and key from config.
type Target struct {
	InstanceName string
	BaseURL      string
	APIKey       string
}

type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaDocument MediaKind = "document"
)

// ReadKey identifies one message to confirm as read.
type ReadKey struct {
	RemoteJID string `json:"remoteJid"`
	ID        string `json:"id"`
	FromMe    bool   `json:"fromMe"`
}

type Participant struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Admin       string `json:"admin,omitempty"`
	Name        string `json:"name,omitempty"`
}

type GroupInfo struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Size         int           `json:"size"`
	PictureURL   string        `json:"pictureUrl,omitempty"`
	Description  string        `json:"desc,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}

type GroupSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Size    int    `json:"size"`
}

const (
	StateOpen       = "open"
	StateClose      = "close"
	StateConnecting = "connecting"
)
