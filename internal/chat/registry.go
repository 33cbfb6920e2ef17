package chat

import (
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Registry owns the set of active chat sessions and routes every message.
// All mutation happens on the single Run goroutine; callers talk to it
// exclusively through the Events channel.
type Registry struct {
	events chan Event
	stopCh chan struct{}
	doneCh chan struct{}
	logger *slog.Logger
}

func NewRegistry(buffer int, logger *slog.Logger) *Registry {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		events: make(chan Event, buffer),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: logger,
	}
}

func (r *Registry) Events() chan<- Event {
	return r.events
}

// Stop signals the Run loop to exit.
func (r *Registry) Stop() {
	close(r.stopCh)
}

// Wait blocks until the Run loop has completely finished.
func (r *Registry) Wait() {
	<-r.doneCh
}

func (r *Registry) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: this map is only accessed in this goroutine.
	clients := make(map[string]*Client)

	for {
		select {
		case ev := <-r.events:
			start := time.Now()
			eventType := ""

			switch ev.Type {
			case EventRegister:
				eventType = "register"
				r.handleRegister(clients, ev)
				ConnectedClients.Set(float64(len(clients)))
			case EventUnregister:
				eventType = "unregister"
				r.handleUnregister(clients, ev)
				ConnectedClients.Set(float64(len(clients)))
			case EventRoute:
				eventType = "route"
				r.handleRoute(clients, ev)
			case EventUsers:
				eventType = "users"
				r.handleUsers(clients, ev)
			}

			EventsTotal.WithLabelValues(eventType).Inc()
			EventProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) handleRegister(clients map[string]*Client, ev Event) {
	defer func() {
		// ReplyChan is only used for register.
		if ev.ReplyChan != nil {
			close(ev.ReplyChan)
		}
	}()

	username := strings.TrimSpace(ev.Username)
	if username == "" || username == SystemUser || utf8.RuneCountInString(username) > 32 {
		if ev.ReplyChan != nil {
			ev.ReplyChan <- ErrUsernameInvalid
		}
		return
	}
	if _, exists := clients[username]; exists {
		if ev.ReplyChan != nil {
			ev.ReplyChan <- ErrUsernameTaken
		}
		return
	}

	ev.Client.Username = username
	clients[username] = ev.Client

	r.logger.Info("user registered", "username", username, "quiet", ev.Quiet)

	if !ev.Quiet {
		r.broadcastNotice(clients, username, username+" has joined the chat")
	}

	if ev.ReplyChan != nil {
		ev.ReplyChan <- nil
	}
}

func (r *Registry) handleUnregister(clients map[string]*Client, ev Event) {
	if ev.Client == nil || ev.Client.Username == "" {
		return
	}
	username := ev.Client.Username
	if _, ok := clients[username]; !ok {
		return
	}
	delete(clients, username)

	r.logger.Info("user left", "username", username)

	// Closing Out stops the session's write pump gracefully. The leave
	// notice goes out only after the entry is gone, so a racing users
	// snapshot never includes a session that already said goodbye.
	close(ev.Client.Out)
	r.broadcastNotice(clients, username, username+" has left the chat")
}

// handleRoute delivers one inbound message: private when the body is
// addressed "<name>: <rest>" to an active user, group otherwise.
func (r *Registry) handleRoute(clients map[string]*Client, ev Event) {
	msg := ev.Msg
	if strings.TrimSpace(msg.Body) == "" && !msg.System() {
		return
	}

	if msg.System() {
		// Notices skip address parsing and never return to their subject.
		for _, c := range clients {
			if c != ev.Client {
				deliver(c, msg)
			}
		}
		return
	}

	// First-occurrence colon split only; a colon later in the body stays
	// part of the text.
	if i := strings.Index(msg.Body, ":"); i >= 0 {
		name := strings.TrimSpace(msg.Body[:i])
		if target, ok := clients[name]; ok {
			msg.Body = strings.TrimSpace(msg.Body[i+1:])
			deliver(target, msg)
			if sender, ok := clients[msg.User]; ok && msg.User != name {
				deliver(sender, msg)
			}
			return
		}
	}

	for _, c := range clients {
		deliver(c, msg)
	}
}

func (r *Registry) handleUsers(clients map[string]*Client, ev Event) {
	if ev.UsersChan == nil {
		return
	}
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	ev.UsersChan <- names
	close(ev.UsersChan)
}

func (r *Registry) broadcastNotice(clients map[string]*Client, subject, text string) {
	msg := Message{User: SystemUser, Body: text, Timestamp: time.Now().Unix()}
	for name, c := range clients {
		if name == subject {
			continue
		}
		deliver(c, msg)
	}
}

func deliver(c *Client, msg Message) {
	// Non-blocking send prevents slow/disconnected clients from blocking
	// the registry; a full queue drops the message for that recipient only.
	select {
	case c.Out <- msg:
	default:
		MessagesDropped.Inc()
	}
}
