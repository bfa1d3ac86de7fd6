package jobs

// SendMessage asks the send pool to deliver a pending outbound message.
type SendMessage struct {
	Tenant         string `json:"tenant"`
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// MarkRead asks the receipt worker to confirm one read message upstream.
type MarkRead struct {
	Tenant    string `json:"tenant"`
	MessageID string `json:"message_id"`
}

type WebhookReceived struct {
	EventID string `json:"event_id"`
}

type DownloadAttachment struct {
	Tenant       string `json:"tenant"`
	AttachmentID string `json:"attachment_id"`
}

type CampaignAction string

const (
	CampaignStart  CampaignAction = "start"
	CampaignPause  CampaignAction = "pause"
	CampaignResume CampaignAction = "resume"
	CampaignCancel CampaignAction = "cancel"
)

type CampaignControl struct {
	Tenant     string         `json:"tenant"`
	CampaignID string         `json:"campaign_id"`
	Action     CampaignAction `json:"action"`
}
