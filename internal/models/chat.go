package models

import "time"

// Conversation is the durable record of one two-party thread. The pair is
// stored normalized (UserA is the lexicographically smaller id) so exactly
// one row exists per pair regardless of who messaged first.
type Conversation struct {
	ID        string    `json:"id"`
	UserA     string    `json:"user_a"`
	UserB     string    `json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	VideoURL       string    `json:"video_url,omitempty"`
	Seen           bool      `json:"seen"`
	CreatedAt      time.Time `json:"created_at"`
}

// Empty reports whether the message carries neither text nor a media URL.
func (m *Message) Empty() bool {
	return m.Text == "" && m.ImageURL == "" && m.VideoURL == ""
}

// ConversationSummary is a derived sidebar entry: the other participant,
// how many of their messages are still unseen, and the latest message as a
// preview. Computed per push, never cached.
type ConversationSummary struct {
	ConversationID string        `json:"conversation_id"`
	Participant    PublicProfile `json:"participant"`
	UnreadCount    int           `json:"unread_count"`
	LastMessage    *Message      `json:"last_message,omitempty"`
}
