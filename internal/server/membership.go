// Package server keeps the ephemeral server membership used for routing: who
// announced themselves in which server over their live connection.
package server

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

// MembershipIndex maps server ids to the users that sent join_server for
// them, with a reverse index so a disconnect touches only that user's servers.
// It is independent of persisted server membership.
type MembershipIndex struct {
	mu      sync.RWMutex
	servers map[string]mapset.Set[string] // server -> users
	users   map[string]mapset.Set[string] // user -> servers
}

func NewMembershipIndex() *MembershipIndex {
	return &MembershipIndex{
		servers: make(map[string]mapset.Set[string]),
		users:   make(map[string]mapset.Set[string]),
	}
}

// Join adds userID to serverID and reports whether it was a new join.
func (m *MembershipIndex) Join(serverID, userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.servers[serverID]
	if !ok {
		members = mapset.NewThreadUnsafeSet[string]()
		m.servers[serverID] = members
	}
	if !members.Add(userID) {
		return false
	}

	servers, ok := m.users[userID]
	if !ok {
		servers = mapset.NewThreadUnsafeSet[string]()
		m.users[userID] = servers
	}
	servers.Add(serverID)
	return true
}

// LeaveAll removes userID from every server it joined and returns those
// server ids. Emptied server entries are kept.
func (m *MembershipIndex) LeaveAll(userID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	servers, ok := m.users[userID]
	if !ok {
		return nil
	}
	delete(m.users, userID)

	left := servers.ToSlice()
	for _, serverID := range left {
		if members, ok := m.servers[serverID]; ok {
			members.Remove(userID)
		}
	}
	return left
}

// MembersOf returns a copy of the server's current members.
func (m *MembershipIndex) MembersOf(serverID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.servers[serverID]
	if !ok {
		return nil
	}
	return members.ToSlice()
}

// ServersOf returns the servers userID has joined.
func (m *MembershipIndex) ServersOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	servers, ok := m.users[userID]
	if !ok {
		return nil
	}
	return servers.ToSlice()
}

func (m *MembershipIndex) IsMember(serverID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members, ok := m.servers[serverID]
	return ok && members.Contains(userID)
}
