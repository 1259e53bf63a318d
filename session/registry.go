package session

import (
	"strings"
	"sync"
)

// Registry tracks the live connections of a server, used by the tick loop to
// flush every connection once per tick.
type Registry struct {
	conns map[*Conn]struct{}
	mu    sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[*Conn]struct{}),
	}
}

func (r *Registry) Add(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = struct{}{}
}

func (r *Registry) Remove(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

// Lookup finds a connection by login username, ignoring case. It returns nil
// when no such connection exists.
func (r *Registry) Lookup(username string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for conn := range r.conns {
		if strings.EqualFold(conn.LoginUsername(), username) {
			return conn
		}
	}
	return nil
}

func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Conn, 0, len(r.conns))
	for conn := range r.conns {
		conns = append(conns, conn)
	}
	return conns
}
