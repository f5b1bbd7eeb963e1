package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatline/internal/models"
)

// Memory is an in-process Store with the same semantics as Postgres,
// including one conversation per normalized pair. Used by tests and usable
// as a throwaway backend for local development.
type Memory struct {
	mu            sync.Mutex
	users         map[string]models.PublicProfile
	conversations map[string]*models.Conversation
	pairs         map[[2]string]string            // normalized pair -> conversation id
	messages      map[string][]models.Message     // conversation id -> ordered history
	clock         time.Time
	err           error
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]models.PublicProfile),
		conversations: make(map[string]*models.Conversation),
		pairs:         make(map[[2]string]string),
		messages:      make(map[string][]models.Message),
		clock:         time.Now(),
	}
}

// AddUser seeds a user profile.
func (s *Memory) AddUser(p models.PublicProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Online = false
	s.users[p.ID] = p
}

// FailWith makes every subsequent operation return err until reset with nil.
func (s *Memory) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// tick returns a strictly increasing timestamp so message ordering is
// deterministic even within one wall-clock tick.
func (s *Memory) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Memory) FindConversation(_ context.Context, userA, userB string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	a, b := NormalizePair(userA, userB)
	id, ok := s.pairs[[2]string{a, b}]
	if !ok {
		return nil, ErrNotFound
	}
	conv := *s.conversations[id]
	return &conv, nil
}

func (s *Memory) CreateConversation(_ context.Context, userA, userB string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	a, b := NormalizePair(userA, userB)
	if id, ok := s.pairs[[2]string{a, b}]; ok {
		conv := *s.conversations[id]
		return &conv, nil
	}

	conv := &models.Conversation{
		ID:        uuid.New().String(),
		UserA:     a,
		UserB:     b,
		CreatedAt: s.tick(),
	}
	s.conversations[conv.ID] = conv
	s.pairs[[2]string{a, b}] = conv.ID

	out := *conv
	return &out, nil
}

func (s *Memory) AppendMessage(_ context.Context, conversationID string, msg models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	msg.ID = uuid.New().String()
	msg.ConversationID = conversationID
	msg.Seen = false
	msg.CreatedAt = s.tick()
	s.messages[conversationID] = append(s.messages[conversationID], msg)

	out := msg
	return &out, nil
}

func (s *Memory) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	out := make([]models.Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out, nil
}

func (s *Memory) MarkSeen(_ context.Context, conversationID, authoredBy string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}

	msgs := s.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID == authoredBy {
			msgs[i].Seen = true
		}
	}
	return nil
}

func (s *Memory) ListConversationSummaries(_ context.Context, userID string) ([]models.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	summaries := []models.ConversationSummary{}
	for _, conv := range s.conversations {
		if conv.UserA != userID && conv.UserB != userID {
			continue
		}
		other := conv.Other(userID)

		sum := models.ConversationSummary{
			ConversationID: conv.ID,
			Participant:    s.users[other],
		}
		msgs := s.messages[conv.ID]
		for i := range msgs {
			if msgs[i].SenderID == other && !msgs[i].Seen {
				sum.UnreadCount++
			}
		}
		if len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			sum.LastMessage = &last
		}
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return s.lastActivity(summaries[i]).After(s.lastActivity(summaries[j]))
	})
	return summaries, nil
}

func (s *Memory) lastActivity(sum models.ConversationSummary) time.Time {
	if sum.LastMessage != nil {
		return sum.LastMessage.CreatedAt
	}
	return s.conversations[sum.ConversationID].CreatedAt
}

func (s *Memory) GetPublicProfile(_ context.Context, userID string) (*models.PublicProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}

	p, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}
