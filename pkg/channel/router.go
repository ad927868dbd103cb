package channel

import (
	"fmt"
	"sync"

	"avaneesh/zgw-go/pkg/link"
)

// Session consumes the radio frames of one or more serial API commands
type Session interface {
	// OnReceive is called when a frame for one of the session's commands arrives
	OnReceive(frame *link.Frame) error

	// Commands returns the commands this session handles
	Commands() []link.Command

	// Name identifies the session in log lines
	Name() string
}

// Router routes link frames to the session registered for their command
type Router struct {
	sessions map[link.Command]Session // Key: serial API command
	mu       sync.RWMutex
}

// NewRouter creates a new router
func NewRouter() *Router {
	return &Router{
		sessions: make(map[link.Command]Session),
	}
}

// AddSession adds a session to the router
func (r *Router) AddSession(session Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cmds := session.Commands()

	// Check if a command is already claimed
	for _, cmd := range cmds {
		if other, exists := r.sessions[cmd]; exists {
			return fmt.Errorf("command %s already handled by %s", cmd, other.Name())
		}
	}

	for _, cmd := range cmds {
		r.sessions[cmd] = session
	}
	return nil
}

// RemoveSession removes a session from the router
func (r *Router) RemoveSession(session Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cmd, s := range r.sessions {
		if s == session {
			delete(r.sessions, cmd)
		}
	}
}

// Route routes a frame to the appropriate session
// Returns error if no session handles the command
func (r *Router) Route(frame *link.Frame) error {
	r.mu.RLock()
	session, exists := r.sessions[frame.Command]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no session found for command %s", frame.Command)
	}

	// Deliver to session
	return session.OnReceive(frame)
}

// GetSession returns the session handling a command
func (r *Router) GetSession(cmd link.Command) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, exists := r.sessions[cmd]
	return session, exists
}

// GetSessionCount returns the number of distinct sessions
func (r *Router) GetSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[Session]struct{})
	for _, s := range r.sessions {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// Clear removes all sessions
func (r *Router) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions = make(map[link.Command]Session)
}
