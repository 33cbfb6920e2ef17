package chat

import (
	"testing"
	"time"
)

func TestRegistry_RegisterRejectsDuplicateUsername(t *testing.T) {
	r := newTestRegistry(t)

	c1 := &Client{Out: make(chan Message, 64)}
	c2 := &Client{Out: make(chan Message, 64)}

	reply1 := make(chan error, 1)
	r.events <- Event{Type: EventRegister, Client: c1, Username: "alice", ReplyChan: reply1}
	if err := <-reply1; err != nil {
		t.Fatalf("expected nil, got %v", err)
	}

	reply2 := make(chan error, 1)
	r.events <- Event{Type: EventRegister, Client: c2, Username: "alice", ReplyChan: reply2}
	if err := <-reply2; err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegistry_RegisterRejectsInvalidUsername(t *testing.T) {
	r := newTestRegistry(t)

	for _, name := range []string{"", "   ", SystemUser, "user-name-way-too-long-for-the-chat-to-accept"} {
		reply := make(chan error, 1)
		r.events <- Event{Type: EventRegister, Client: &Client{Out: make(chan Message, 1)}, Username: name, ReplyChan: reply}
		if err := <-reply; err != ErrUsernameInvalid {
			t.Fatalf("username %q: expected ErrUsernameInvalid, got %v", name, err)
		}
	}
}

func TestRegistry_UsersReflectJoinLeave(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	if got := activeUsers(t, r); len(got) != 2 || got[0] != "alice" || got[1] != "bob" {
		t.Fatalf("unexpected users snapshot: %v", got)
	}

	r.events <- Event{Type: EventUnregister, Client: bob}

	if got := activeUsers(t, r); len(got) != 1 || got[0] != "alice" {
		t.Fatalf("unexpected users snapshot after leave: %v", got)
	}
}

func TestRegistry_JoinNoticeSkipsSubject(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	msg := waitForBody(t, alice.Out, "bob has joined the chat")
	if msg.User != SystemUser {
		t.Fatalf("join notice should come from %s, got %q", SystemUser, msg.User)
	}
	assertNoMessage(t, r, bob.Out)
}

func TestRegistry_QuietRegisterSuppressesJoinNotice(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	listener := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")

	reply := make(chan error, 1)
	r.events <- Event{Type: EventRegister, Client: listener, Username: "watcher", Quiet: true, ReplyChan: reply}
	if err := <-reply; err != nil {
		t.Fatalf("quiet register error: %v", err)
	}

	assertNoMessage(t, r, alice.Out)

	// The listener is still a full session and receives broadcasts.
	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "hi all"}}
	waitForBody(t, listener.Out, "hi all")
}

func TestRegistry_GroupBroadcastReachesEveryone(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}
	carol := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")
	register(t, r, carol, "carol")

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "hi all"}}

	for _, c := range []*Client{alice, bob, carol} {
		msg := waitForBody(t, c.Out, "hi all")
		if msg.User != "alice" {
			t.Fatalf("unexpected sender: %q", msg.User)
		}
	}
}

func TestRegistry_PrivateMessageEchoesToSender(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}
	carol := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")
	register(t, r, carol, "carol")

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "bob: hello"}}

	if msg := waitForBody(t, bob.Out, "hello"); msg.User != "alice" {
		t.Fatalf("unexpected sender on private message: %q", msg.User)
	}
	waitForBody(t, alice.Out, "hello")
	assertNoMessage(t, r, carol.Out)
}

func TestRegistry_ColonAfterTargetStaysInBody(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "bob: note: ships friday"}}

	waitForBody(t, bob.Out, "note: ships friday")
}

func TestRegistry_UnknownTargetFallsThroughToGroup(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "nobody: text"}}

	// Body must survive unmodified when the prefix is not an active user.
	waitForBody(t, alice.Out, "nobody: text")
	waitForBody(t, bob.Out, "nobody: text")
}

func TestRegistry_EmptyBodyDropped(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "   "}}

	assertNoMessage(t, r, bob.Out)
}

func TestRegistry_UnregisterIdempotent(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	bob := &Client{Out: make(chan Message, 256)}

	register(t, r, alice, "alice")
	register(t, r, bob, "bob")
	waitForBody(t, alice.Out, "bob has joined the chat")

	r.events <- Event{Type: EventUnregister, Client: bob}
	r.events <- Event{Type: EventUnregister, Client: bob}

	waitForBody(t, alice.Out, "bob has left the chat")
	// Exactly one leave notice despite the double unregister.
	assertNoMessage(t, r, alice.Out)
}

func TestRegistry_FullQueueDropsWithoutBlocking(t *testing.T) {
	r := newTestRegistry(t)

	alice := &Client{Out: make(chan Message, 256)}
	stuck := &Client{Out: make(chan Message, 1)}

	register(t, r, alice, "alice")
	register(t, r, stuck, "stuck")

	// Fill the stuck client's queue so the next delivery has to drop.
	stuck.Out <- Message{User: "alice", Body: "filler"}

	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "one"}}
	r.events <- Event{Type: EventRoute, Msg: Message{User: "alice", Body: "two"}}

	// The healthy client still gets both messages in order.
	waitForBody(t, alice.Out, "one")
	waitForBody(t, alice.Out, "two")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(128, nil)
	go r.Run()
	t.Cleanup(func() {
		r.Stop()
		r.Wait()
	})
	return r
}

func register(t *testing.T, r *Registry, c *Client, username string) {
	t.Helper()
	reply := make(chan error, 1)
	r.events <- Event{Type: EventRegister, Client: c, Username: username, ReplyChan: reply}
	if err := <-reply; err != nil {
		t.Fatalf("register(%s) error: %v", username, err)
	}
}

func activeUsers(t *testing.T, r *Registry) []string {
	t.Helper()
	users := make(chan []string, 1)
	r.events <- Event{Type: EventUsers, UsersChan: users}
	select {
	case names := <-users:
		return names
	case <-time.After(1 * time.Second):
		t.Fatal("timeout waiting for users snapshot")
		return nil
	}
}

func waitForBody(t *testing.T, ch <-chan Message, body string) Message {
	t.Helper()
	deadline := time.NewTimer(1 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case m := <-ch:
			if m.Body == body {
				return m
			}
			// ignore other traffic (notices, earlier messages)
		case <-deadline.C:
			t.Fatalf("timeout waiting for body %q", body)
			return Message{}
		}
	}
}

// assertNoMessage fences on a users roundtrip so every earlier event has
// been processed, then requires the queue to be empty.
func assertNoMessage(t *testing.T, r *Registry, ch <-chan Message) {
	t.Helper()
	activeUsers(t, r)
	select {
	case m := <-ch:
		t.Fatalf("unexpected message: %+v", m)
	default:
	}
}
