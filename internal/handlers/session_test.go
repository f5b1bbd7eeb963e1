package handlers_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"chatline/internal/handlers"
	"chatline/internal/hub"
	"chatline/internal/models"
	"chatline/internal/presence"
	"chatline/internal/store"
)

type fakeConn struct {
	ch chan interface{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{ch: make(chan interface{}, 32)}
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.ch <- v
	return nil
}

func (f *fakeConn) recv(t *testing.T) interface{} {
	t.Helper()
	select {
	case v := <-f.ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func (f *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case v := <-f.ch:
		t.Fatalf("unexpected event: %+v", v)
	case <-time.After(100 * time.Millisecond):
	}
}

func recvPresence(t *testing.T, f *fakeConn) models.PresenceEvent {
	t.Helper()
	ev, ok := f.recv(t).(models.PresenceEvent)
	if !ok {
		t.Fatalf("expected presence-snapshot")
	}
	return ev
}

func recvMessageList(t *testing.T, f *fakeConn) models.MessageListEvent {
	t.Helper()
	ev, ok := f.recv(t).(models.MessageListEvent)
	if !ok {
		t.Fatalf("expected message-list")
	}
	return ev
}

func recvSidebar(t *testing.T, f *fakeConn) models.SidebarEvent {
	t.Helper()
	ev, ok := f.recv(t).(models.SidebarEvent)
	if !ok {
		t.Fatalf("expected sidebar")
	}
	return ev
}

type fixture struct {
	deps  handlers.Deps
	store *store.Memory
	seq   int
}

func newFixture() *fixture {
	mem := store.NewMemory()
	mem.AddUser(models.PublicProfile{ID: "u1", Name: "Alice", Email: "alice@example.com"})
	mem.AddUser(models.PublicProfile{ID: "u2", Name: "Bob", Email: "bob@example.com"})
	mem.AddUser(models.PublicProfile{ID: "u3", Name: "Cara", Email: "cara@example.com"})

	return &fixture{
		deps: handlers.Deps{
			Hub:      hub.New(),
			Presence: presence.NewRegistry(),
			Store:    mem,
		},
		store: mem,
	}
}

func (f *fixture) connect(userID string) (*handlers.Session, *fakeConn) {
	f.seq++
	conn := newFakeConn()
	sess := handlers.Connect(f.deps, fmt.Sprintf("conn-%d", f.seq), userID, userID, conn)
	return sess, conn
}

func TestPresenceBroadcastLifecycle(t *testing.T) {
	f := newFixture()

	_, c1 := f.connect("u1")
	if got := recvPresence(t, c1).Online; !reflect.DeepEqual(got, []string{"u1"}) {
		t.Fatalf("snapshot after u1 connects = %v", got)
	}

	s2, c2 := f.connect("u2")
	if got := recvPresence(t, c1).Online; !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("u1's snapshot after u2 connects = %v", got)
	}
	if got := recvPresence(t, c2).Online; !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("u2's snapshot after u2 connects = %v", got)
	}

	// Second tab for u2: no transition, so no broadcast; the new tab still
	// receives the current snapshot itself.
	s2b, c2b := f.connect("u2")
	if got := recvPresence(t, c2b).Online; !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("second tab snapshot = %v", got)
	}
	c1.expectNothing(t)
	c2.expectNothing(t)

	// Closing one of two tabs keeps u2 online.
	s2b.Disconnect()
	c1.expectNothing(t)

	// Closing the last tab broadcasts a snapshot without u2.
	s2.Disconnect()
	if got := recvPresence(t, c1).Online; !reflect.DeepEqual(got, []string{"u1"}) {
		t.Fatalf("u1's snapshot after u2 disconnects = %v", got)
	}
}

func TestFirstContactSendMessage(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	_, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"hello"}`))

	for _, conn := range []*fakeConn{c1, c2} {
		list := recvMessageList(t, conn)
		if len(list.Messages) != 1 {
			t.Fatalf("got %d messages, want 1", len(list.Messages))
		}
		msg := list.Messages[0]
		if msg.Text != "hello" || msg.SenderID != "u1" || msg.Seen {
			t.Fatalf("unexpected message: %+v", msg)
		}

		sidebar := recvSidebar(t, conn)
		if len(sidebar.Conversations) != 1 {
			t.Fatalf("got %d sidebar entries, want 1", len(sidebar.Conversations))
		}
	}

	// Exactly one conversation exists, reachable from either ordering.
	ctx := context.Background()
	ab, err := f.store.FindConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("FindConversation(u1,u2) failed: %v", err)
	}
	ba, err := f.store.FindConversation(ctx, "u2", "u1")
	if err != nil {
		t.Fatalf("FindConversation(u2,u1) failed: %v", err)
	}
	if ab.ID != ba.ID {
		t.Fatalf("conversation lookup is not symmetric: %s vs %s", ab.ID, ba.ID)
	}
}

func TestReplyAppendsToSameConversation(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	s2, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"ping"}`))
	recvMessageList(t, c1)
	recvSidebar(t, c1)
	recvMessageList(t, c2)
	recvSidebar(t, c2)

	s2.Dispatch([]byte(`{"event":"send-message","receiver_id":"u1","text":"pong"}`))

	list := recvMessageList(t, c1)
	if len(list.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(list.Messages))
	}
	if list.Messages[0].Text != "ping" || list.Messages[1].Text != "pong" {
		t.Fatalf("history out of order: %+v", list.Messages)
	}

	// Unread count on u1's side reflects bob's unseen reply.
	sidebar := recvSidebar(t, c1)
	if sidebar.Conversations[0].UnreadCount != 1 {
		t.Fatalf("u1 unread = %d, want 1", sidebar.Conversations[0].UnreadCount)
	}
	if last := sidebar.Conversations[0].LastMessage; last == nil || last.Text != "pong" {
		t.Fatalf("unexpected last message: %+v", last)
	}
}

func TestMarkSeenFlipsCounterpartyMessages(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	s2, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"one"}`))
	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"two"}`))
	s2.Dispatch([]byte(`{"event":"send-message","receiver_id":"u1","text":"three"}`))
	for i := 0; i < 3; i++ {
		recvMessageList(t, c1)
		recvSidebar(t, c1)
		recvMessageList(t, c2)
		recvSidebar(t, c2)
	}

	// Bob has read Alice's messages.
	s2.Dispatch([]byte(`{"event":"mark-seen","counterparty_id":"u1"}`))

	// Both sides get refreshed sidebars.
	aliceSidebar := recvSidebar(t, c1)
	bobSidebar := recvSidebar(t, c2)
	if bobSidebar.Conversations[0].UnreadCount != 0 {
		t.Fatalf("bob's unread after mark-seen = %d, want 0", bobSidebar.Conversations[0].UnreadCount)
	}
	if aliceSidebar.Conversations[0].UnreadCount != 1 {
		t.Fatalf("alice's unread = %d, want 1 (bob's reply still unseen)", aliceSidebar.Conversations[0].UnreadCount)
	}

	ctx := context.Background()
	conv, err := f.store.FindConversation(ctx, "u1", "u2")
	if err != nil {
		t.Fatalf("FindConversation failed: %v", err)
	}
	msgs, err := f.store.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	for _, m := range msgs {
		want := m.SenderID == "u1"
		if m.Seen != want {
			t.Fatalf("message %q: seen = %v, want %v", m.Text, m.Seen, want)
		}
	}
}

func TestMarkSeenWithoutConversationDropped(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	_, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	// The pair never talked; there is nothing to mark and nothing to push.
	s1.Dispatch([]byte(`{"event":"mark-seen","counterparty_id":"u2"}`))
	c1.expectNothing(t)
	c2.expectNothing(t)
}

func TestPeerViewWithoutHistory(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	recvPresence(t, c1)

	s1.Dispatch([]byte(`{"event":"request-peer-view","target_id":"u2"}`))

	profile, ok := c1.recv(t).(models.PeerProfileEvent)
	if !ok {
		t.Fatalf("expected peer-profile first")
	}
	if profile.User.ID != "u2" || profile.User.Name != "Bob" || profile.User.Online {
		t.Fatalf("unexpected profile: %+v", profile.User)
	}

	list := recvMessageList(t, c1)
	if list.Messages == nil || len(list.Messages) != 0 {
		t.Fatalf("expected empty (non-nil) history, got %+v", list.Messages)
	}
}

func TestPeerViewReportsOnlineFlag(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	_, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	s1.Dispatch([]byte(`{"event":"request-peer-view","target_id":"u2"}`))

	profile := c1.recv(t).(models.PeerProfileEvent)
	if !profile.User.Online {
		t.Fatalf("u2 is connected, profile should say online")
	}
	recvMessageList(t, c1)
	c2.expectNothing(t) // peer view goes to the requester only
}

func TestPeerViewUnknownTargetDropped(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	recvPresence(t, c1)

	s1.Dispatch([]byte(`{"event":"request-peer-view","target_id":"nobody"}`))
	c1.expectNothing(t)
}

func TestSidebarIdempotent(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	_, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"hi"}`))
	recvMessageList(t, c1)
	recvSidebar(t, c1)
	recvMessageList(t, c2)
	recvSidebar(t, c2)

	s1.Dispatch([]byte(`{"event":"request-sidebar"}`))
	first := recvSidebar(t, c1)
	s1.Dispatch([]byte(`{"event":"request-sidebar"}`))
	second := recvSidebar(t, c1)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("sidebar not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestEmptyMessageRejected(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	recvPresence(t, c1)

	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2"}`))

	if _, ok := c1.recv(t).(models.ErrorEvent); !ok {
		t.Fatalf("expected error event for empty message")
	}
	if _, err := f.store.FindConversation(context.Background(), "u1", "u2"); err == nil {
		t.Fatalf("empty message must not create a conversation")
	}
}

func TestStoreFailureDropsEventKeepsSessionAlive(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	_, c2 := f.connect("u2")
	recvPresence(t, c1)
	recvPresence(t, c1)
	recvPresence(t, c2)

	f.store.FailWith(store.ErrUnavailable)
	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"lost"}`))
	c1.expectNothing(t)
	c2.expectNothing(t)

	// The session survives and works once the store recovers.
	f.store.FailWith(nil)
	s1.Dispatch([]byte(`{"event":"send-message","receiver_id":"u2","text":"back"}`))
	list := recvMessageList(t, c1)
	if len(list.Messages) != 1 || list.Messages[0].Text != "back" {
		t.Fatalf("unexpected history after recovery: %+v", list.Messages)
	}
}

func TestMalformedFrameIgnored(t *testing.T) {
	f := newFixture()

	s1, c1 := f.connect("u1")
	recvPresence(t, c1)

	s1.Dispatch([]byte(`{not json`))
	s1.Dispatch([]byte(`{"event":"no-such-event"}`))
	c1.expectNothing(t)
}
