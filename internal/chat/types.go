package chat

import "github.com/gorilla/websocket"

// SystemUser is the reserved sender name carried by join/leave notices.
const SystemUser = "SYSTEM"

// Message is one chat envelope as it travels in either direction.
type Message struct {
	User      string `json:"user"`
	Body      string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// System reports whether the message is a server-generated notice.
func (m Message) System() bool { return m.User == SystemUser }

// Client is one connected chat participant. Out is drained by the
// session's write pump and closed by the registry on unregister.
type Client struct {
	Conn     *websocket.Conn
	Username string
	Out      chan Message
}

type EventType int

const (
	EventRegister EventType = iota
	EventUnregister
	EventRoute
	EventUsers
)

type Event struct {
	Type      EventType
	Client    *Client
	Username  string
	Quiet     bool // register without a join notice (LISTENING bootstrap)
	Msg       Message
	ReplyChan chan error    // used by register to ack success/failure
	UsersChan chan []string // used by users to return the active snapshot
}

var (
	ErrUsernameTaken   = errorString("username_taken")
	ErrUsernameInvalid = errorString("username_invalid")
)

type errorString string

func (e errorString) Error() string { return string(e) }
