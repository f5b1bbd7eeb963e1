package handlers

import (
	"context"
	"errors"
	"log"

	"chatline/internal/hub"
	"chatline/internal/models"
	"chatline/internal/presence"
	"chatline/internal/store"
	"chatline/internal/utils"
)

// Deps bundles the shared collaborators every connection session needs.
type Deps struct {
	Hub      *hub.Hub
	Presence *presence.Registry
	Store    store.Store
}

// Session is the per-connection event context: one authenticated user, one
// hub client, plus handles to the shared registry and store. Handlers hold
// no mutable state beyond this struct, so nothing leaks between connections.
type Session struct {
	UserID string
	Name   string

	client *hub.Client
	deps   Deps
}

// Connect binds an authenticated connection to the hub and the presence
// registry. The presence snapshot is broadcast to everyone when the user
// comes online; an additional tab of an already-online user only receives
// the current snapshot itself.
func Connect(deps Deps, connID, userID, name string, conn hub.JSONWriter) *Session {
	client := deps.Hub.Register(connID, userID, conn)
	s := &Session{UserID: userID, Name: name, client: client, deps: deps}

	if deps.Presence.Register(userID) {
		deps.Hub.BroadcastAll(presenceSnapshot(deps.Presence))
	} else {
		deps.Hub.SendTo(client, presenceSnapshot(deps.Presence))
	}
	return s
}

// Disconnect unbinds the session. The updated snapshot is broadcast only
// when this was the user's last connection; other open tabs keep the user
// online.
func (s *Session) Disconnect() {
	s.deps.Hub.Unregister(s.client)
	if s.deps.Presence.Unregister(s.UserID) {
		s.deps.Hub.BroadcastAll(presenceSnapshot(s.deps.Presence))
	}
}

func presenceSnapshot(r *presence.Registry) models.PresenceEvent {
	return models.PresenceEvent{Event: models.EventPresenceSnapshot, Online: r.Snapshot()}
}

// Dispatch routes one inbound frame to its handler. Malformed frames and
// unknown events are logged and dropped; a store failure inside a handler
// never terminates the session.
func (s *Session) Dispatch(raw []byte) {
	var ev models.ClientEvent
	if err := utils.SafeJSONParse(raw, &ev); err != nil {
		utils.LogError(err, "parse event")
		return
	}

	ctx := context.Background()
	switch ev.Event {
	case models.EventRequestPeerView:
		s.handlePeerView(ctx, ev.TargetID)
	case models.EventSendMessage:
		s.handleSendMessage(ctx, &ev)
	case models.EventRequestSidebar:
		userID := ev.UserID
		if userID == "" {
			userID = s.UserID
		}
		s.handleSidebar(ctx, userID)
	case models.EventMarkSeen:
		s.handleMarkSeen(ctx, ev.CounterpartyID)
	default:
		log.Printf("unknown event %q from user %s", ev.Event, s.UserID)
	}
}

// handlePeerView pushes the target's profile and the full shared history to
// the requesting connection only. A pair that never talked gets an empty
// history rather than an error.
func (s *Session) handlePeerView(ctx context.Context, targetID string) {
	if targetID == "" {
		return
	}

	profile, err := s.deps.Store.GetPublicProfile(ctx, targetID)
	if err != nil {
		utils.LogError(err, "peer profile")
		return
	}
	profile.Online = s.deps.Presence.IsOnline(targetID)
	s.deps.Hub.SendTo(s.client, models.PeerProfileEvent{
		Event: models.EventPeerProfile,
		User:  *profile,
	})

	listEv := models.MessageListEvent{
		Event:    models.EventMessageList,
		Messages: []models.Message{},
	}
	conv, err := s.deps.Store.FindConversation(ctx, s.UserID, targetID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		utils.LogError(err, "find conversation")
		return
	}
	if conv != nil {
		messages, err := s.deps.Store.ListMessages(ctx, conv.ID)
		if err != nil {
			utils.LogError(err, "list messages")
			return
		}
		listEv.ConversationID = conv.ID
		listEv.Messages = messages
	}
	s.deps.Hub.SendTo(s.client, listEv)
}

// handleSendMessage appends a message to the (possibly new) conversation
// with the receiver, then pushes the re-read history and fresh sidebars to
// both participants. Re-reading after the append keeps the push consistent
// with what the store committed.
func (s *Session) handleSendMessage(ctx context.Context, ev *models.ClientEvent) {
	if ev.ReceiverID == "" {
		return
	}

	msg := models.Message{
		SenderID: s.UserID,
		Text:     ev.Text,
		ImageURL: ev.ImageURL,
		VideoURL: ev.VideoURL,
	}
	if msg.Empty() {
		s.deps.Hub.SendTo(s.client, models.ErrorEvent{
			Event: models.EventError,
			Error: "message must carry text or a media url",
		})
		return
	}

	conv, err := store.FindOrCreate(ctx, s.deps.Store, s.UserID, ev.ReceiverID)
	if err != nil {
		utils.LogError(err, "find or create conversation")
		return
	}
	if _, err := s.deps.Store.AppendMessage(ctx, conv.ID, msg); err != nil {
		utils.LogError(err, "append message")
		return
	}

	messages, err := s.deps.Store.ListMessages(ctx, conv.ID)
	if err != nil {
		utils.LogError(err, "list messages")
		return
	}

	listEv := models.MessageListEvent{
		Event:          models.EventMessageList,
		ConversationID: conv.ID,
		Messages:       messages,
	}
	s.deps.Hub.SendToUser(s.UserID, listEv)
	s.deps.Hub.SendToUser(ev.ReceiverID, listEv)

	s.pushSidebar(ctx, s.UserID)
	s.pushSidebar(ctx, ev.ReceiverID)
}

// handleSidebar pushes the summary list to the requesting connection only.
func (s *Session) handleSidebar(ctx context.Context, userID string) {
	summaries, err := s.sidebarFor(ctx, userID)
	if err != nil {
		utils.LogError(err, "sidebar")
		return
	}
	s.deps.Hub.SendTo(s.client, models.SidebarEvent{
		Event:         models.EventSidebar,
		Conversations: summaries,
	})
}

// handleMarkSeen marks every message the counterparty authored in the
// shared conversation as seen, then refreshes both sidebars (the unread
// counts changed on both sides).
func (s *Session) handleMarkSeen(ctx context.Context, counterpartyID string) {
	if counterpartyID == "" {
		return
	}

	conv, err := s.deps.Store.FindConversation(ctx, s.UserID, counterpartyID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			utils.LogError(err, "find conversation")
		}
		return
	}
	if err := s.deps.Store.MarkSeen(ctx, conv.ID, counterpartyID); err != nil {
		utils.LogError(err, "mark seen")
		return
	}

	s.pushSidebar(ctx, s.UserID)
	s.pushSidebar(ctx, counterpartyID)
}

// pushSidebar recomputes userID's summaries and delivers them to all of that
// user's connections.
func (s *Session) pushSidebar(ctx context.Context, userID string) {
	summaries, err := s.sidebarFor(ctx, userID)
	if err != nil {
		utils.LogError(err, "sidebar")
		return
	}
	s.deps.Hub.SendToUser(userID, models.SidebarEvent{
		Event:         models.EventSidebar,
		Conversations: summaries,
	})
}

func (s *Session) sidebarFor(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries, err := s.deps.Store.ListConversationSummaries(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		summaries[i].Participant.Online = s.deps.Presence.IsOnline(summaries[i].Participant.ID)
	}
	return summaries, nil
}
