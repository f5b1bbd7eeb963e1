package models

// Inbound event names.
const (
	EventRequestPeerView = "request-peer-view"
	EventSendMessage     = "send-message"
	EventRequestSidebar  = "request-sidebar"
	EventMarkSeen        = "mark-seen"
)

// Outbound event names.
const (
	EventPresenceSnapshot = "presence-snapshot"
	EventPeerProfile      = "peer-profile"
	EventMessageList      = "message-list"
	EventSidebar          = "sidebar"
	EventError            = "error"
)

// ClientEvent is the inbound websocket envelope. Which fields are meaningful
// depends on Event.
type ClientEvent struct {
	Event          string `json:"event"`
	TargetID       string `json:"target_id,omitempty"`       // request-peer-view
	ReceiverID     string `json:"receiver_id,omitempty"`     // send-message
	UserID         string `json:"user_id,omitempty"`         // request-sidebar
	CounterpartyID string `json:"counterparty_id,omitempty"` // mark-seen
	Text           string `json:"text,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	VideoURL       string `json:"video_url,omitempty"`
}

type PresenceEvent struct {
	Event  string   `json:"event"`
	Online []string `json:"online"`
}

type PeerProfileEvent struct {
	Event string        `json:"event"`
	User  PublicProfile `json:"user"`
}

type MessageListEvent struct {
	Event          string    `json:"event"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Messages       []Message `json:"messages"`
}

type SidebarEvent struct {
	Event         string                `json:"event"`
	Conversations []ConversationSummary `json:"conversations"`
}

type ErrorEvent struct {
	Event string `json:"event"`
	Error string `json:"error"`
}
