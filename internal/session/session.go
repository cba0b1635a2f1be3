// Package session implements the Client Session (spec.md §4.5): the
// per-connection state the Dispatcher multiplexes.
package session

import "net"

// Session is one logical client connection.
type Session struct {
	Conn      net.Conn
	MAC       string // empty until a subscribe command is recognized
	Interval  int
	NextCheck int64 // monotonic-seconds deadline for the next emitted update
}

// New wraps a freshly accepted connection.
func New(conn net.Conn) *Session {
	return &Session{Conn: conn}
}

// Subscribe replaces this session's subscription and arms it to fire on
// the very next Dispatcher tick (spec.md §4.6).
func (s *Session) Subscribe(mac string, interval int) {
	s.MAC = mac
	s.Interval = interval
	s.NextCheck = 0
}

// ForceNow arms the session to fire on the next tick without altering its
// subscription (spec.md §4.6 "now" command).
func (s *Session) ForceNow() {
	s.NextCheck = 0
}

// HasSubscription reports whether the session currently references a MAC.
func (s *Session) HasSubscription() bool {
	return s.MAC != ""
}

// Due reports whether this session's update is due at or before now.
func (s *Session) Due(now int64) bool {
	return s.NextCheck <= now
}

// Reschedule advances the deadline to the session's own cadence.
func (s *Session) Reschedule(now int64) {
	s.NextCheck = now + int64(s.Interval)
}
