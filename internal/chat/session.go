package chat

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Reserved bootstrap bodies recognized on a session's first frame.
const (
	controlGetUsers  = "GET_USERS"
	controlListening = "LISTENING"
)

// Session bridges one WebSocket connection to the registry: the read pump
// feeds inbound frames into the event loop and the write pump drains the
// client's outbound queue back to the wire.
type Session struct {
	client *Client
	events chan<- Event
	logger *slog.Logger
}

func NewSession(conn *websocket.Conn, events chan<- Event, queueSize int, logger *slog.Logger) *Session {
	if queueSize <= 0 {
		queueSize = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client: &Client{Conn: conn, Out: make(chan Message, queueSize)},
		events: events,
		logger: logger,
	}
}

// Run drives the session through its whole lifecycle and returns when the
// connection is done. The first inbound frame establishes identity and
// intent: GET_USERS is answered without registering, LISTENING registers
// without a join notice, anything else registers and is routed as a normal
// first message.
func (s *Session) Run() {
	defer s.client.Conn.Close()

	var first Message
	if err := s.client.Conn.ReadJSON(&first); err != nil {
		return
	}

	switch first.Body {
	case controlGetUsers:
		s.replyUsers(first.User)
		return
	case controlListening:
		if err := s.register(first.User, true); err != nil {
			s.writeReject(err)
			return
		}
	default:
		if err := s.register(first.User, false); err != nil {
			s.writeReject(err)
			return
		}
		first.User = s.client.Username
		if first.Timestamp == 0 {
			first.Timestamp = time.Now().Unix()
		}
		s.events <- Event{Type: EventRoute, Client: s.client, Msg: first}
	}

	go s.writePump()
	s.readPump()
}

func (s *Session) register(username string, quiet bool) error {
	reply := make(chan error, 1)
	s.events <- Event{
		Type:      EventRegister,
		Client:    s.client,
		Username:  username,
		Quiet:     quiet,
		ReplyChan: reply,
	}
	return <-reply
}

// readPump consumes inbound frames until the connection ends, then hands
// the session back to the registry for cleanup and the leave notice.
func (s *Session) readPump() {
	for {
		var msg Message
		if err := s.client.Conn.ReadJSON(&msg); err != nil {
			s.events <- Event{Type: EventUnregister, Client: s.client}
			return
		}
		// Identity is fixed at join time; the per-frame user field is not
		// trusted after that.
		msg.User = s.client.Username
		if msg.Timestamp == 0 {
			msg.Timestamp = time.Now().Unix()
		}
		s.events <- Event{Type: EventRoute, Client: s.client, Msg: msg}
	}
}

// writePump runs until the registry closes the outbound queue on
// unregister. Write failures just stop the pump; the read side notices the
// dead connection and triggers cleanup.
func (s *Session) writePump() {
	for msg := range s.client.Out {
		if err := s.client.Conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// replyUsers answers a GET_USERS bootstrap with one synthetic ONLINE frame
// per active user (excluding the requester) and leaves the session
// unregistered.
func (s *Session) replyUsers(requester string) {
	users := make(chan []string, 1)
	s.events <- Event{Type: EventUsers, UsersChan: users}

	now := time.Now().Unix()
	for _, name := range <-users {
		if name == requester {
			continue
		}
		if err := s.client.Conn.WriteJSON(Message{User: name, Body: "ONLINE", Timestamp: now}); err != nil {
			return
		}
	}
	_ = s.client.Conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (s *Session) writeReject(err error) {
	s.logger.Info("registration rejected", "error", err)
	_ = s.client.Conn.WriteJSON(Message{
		User:      SystemUser,
		Body:      "ERR " + err.Error(),
		Timestamp: time.Now().Unix(),
	})
}
