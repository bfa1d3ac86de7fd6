// Package broadcast names the realtime rooms and events shared by the pipeline and the websocket hub.
package broadcast

import (
	"context"
	"sync"
)

const (
	EventNewConversation         = "new_conversation"
	EventNewMessageNotification  = "new_message_notification"
	EventConversationUpdated     = "conversation_updated"
	EventMessageReceived         = "message_received"
	EventMessageStatusUpdate     = "message_status_update"
	EventMessageReactionUpdate   = "message_reaction_update"
	EventMessageDeleted          = "message_deleted"
	EventConversationTransferred = "conversation_transferred"
	EventInstanceStatus          = "instance_status"
	EventCampaignProgress        = "campaign_progress"
)

// Event is the JSON frame written to websocket clients.
type Event struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Data any    `json:"data"`
}

type Broadcaster interface {
	Broadcast(ctx context.Context, room, eventType string, data any)
}

func TenantRoom(tenant string) string {
	return "chat_tenant_" + tenant
}

func ConversationRoom(tenant, conversationID string) string {
	return "chat_tenant_" + tenant + "_conversation_" + conversationID
}

// Nop drops every event.
type Nop struct{}

func (Nop) Broadcast(context.Context, string, string, any) {}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

func (r *Recorder) Broadcast(_ context.Context, room, eventType string, data any) {
	r.mu.Lock()
	r.Events = append(r.Events, Event{Type: eventType, Room: room, Data: data})
	r.mu.Unlock()
}

// Types returns the event types sent to room, in order.
func (r *Recorder) Types(room string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.Events {
		if e.Room == room {
			out = append(out, e.Type)
		}
	}
	return out
}

func (r *Recorder) Last(eventType string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Type == eventType {
			return r.Events[i], true
		}
	}
	return Event{}, false
}
