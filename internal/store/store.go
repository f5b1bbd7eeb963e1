package store

import (
	"context"
	"errors"

	"chatline/internal/models"
)

var (
	// ErrNotFound means the referenced user or conversation does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable wraps transient storage failures. Event handlers log it
	// and drop the event; it never terminates a session.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the persistence boundary for conversations, messages and public
// user profiles. All consistency discipline is deferred to the backing
// store; callers hold no cross-session locks.
type Store interface {
	// FindConversation looks up the conversation for the unordered pair
	// {userA, userB}. Returns ErrNotFound when the pair never talked.
	FindConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// CreateConversation inserts the conversation for the pair. When a
	// concurrent session created it first, the existing record is returned.
	CreateConversation(ctx context.Context, userA, userB string) (*models.Conversation, error)

	// AppendMessage appends msg to the conversation and returns the stored
	// message with id, seen flag and timestamp filled in.
	AppendMessage(ctx context.Context, conversationID string, msg models.Message) (*models.Message, error)

	// ListMessages returns the conversation's full history, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	// MarkSeen sets seen=true on every message in the conversation authored
	// by authoredBy.
	MarkSeen(ctx context.Context, conversationID, authoredBy string) error

	// ListConversationSummaries returns one sidebar entry per conversation
	// userID participates in, most recent activity first. The Online flag of
	// each participant is left false; the caller fills it from presence.
	ListConversationSummaries(ctx context.Context, userID string) ([]models.ConversationSummary, error)

	// GetPublicProfile returns the public projection of a user, with the
	// Online flag left false for the caller to fill in.
	GetPublicProfile(ctx context.Context, userID string) (*models.PublicProfile, error)
}

// NormalizePair orders two user ids so the lexicographically smaller one
// comes first. Conversations persist exactly one ordering per pair, which
// makes FindConversation(a, b) and FindConversation(b, a) the same query.
func NormalizePair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// FindOrCreate returns the conversation for the pair, creating it on first
// contact.
func FindOrCreate(ctx context.Context, s Store, userA, userB string) (*models.Conversation, error) {
	conv, err := s.FindConversation(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return s.CreateConversation(ctx, userA, userB)
}
