// Package server tracks per-user presence for users who have connected
// during the life of the process.
package server

import (
	"maps"
	"sync"
	"time"
)

// Presence record keys.
const (
	PresenceStatus   = "status"
	PresenceLastSeen = "last_seen"
	PresenceActivity = "activity"

	StatusOnline  = "online"
	StatusOffline = "offline"
)

// PresenceRecord is a user's free-form presence state. The status, last_seen
// and activity keys are always present; any other key is client supplied.
type PresenceRecord map[string]any

func (r PresenceRecord) Status() string {
	s, _ := r[PresenceStatus].(string)
	return s
}

func (r PresenceRecord) Activity() string {
	s, _ := r[PresenceActivity].(string)
	return s
}

func (r PresenceRecord) LastSeen() string {
	s, _ := r[PresenceLastSeen].(string)
	return s
}

// PresenceStore holds one record per user that has connected at least once.
// A missing record means "never connected", not "offline".
type PresenceStore struct {
	mu      sync.RWMutex
	records map[string]PresenceRecord
}

func NewPresenceStore() *PresenceStore {
	return &PresenceStore{records: make(map[string]PresenceRecord)}
}

func formatLastSeen(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Connect resets the user's record to online.
func (p *PresenceStore) Connect(userID string, now time.Time) PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := PresenceRecord{
		PresenceStatus:   StatusOnline,
		PresenceLastSeen: formatLastSeen(now),
		PresenceActivity: StatusOnline,
	}
	p.records[userID] = rec
	return maps.Clone(rec)
}

// Disconnect marks an existing record offline. It reports false when the user
// has no record.
func (p *PresenceStore) Disconnect(userID string, now time.Time) (PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[userID]
	if !ok {
		return nil, false
	}
	rec[PresenceStatus] = StatusOffline
	rec[PresenceLastSeen] = formatLastSeen(now)
	return maps.Clone(rec), true
}

// Update shallow-merges fields into the user's record: supplied keys
// overwrite, others keep their value. Nothing is created for a user without a
// record.
func (p *PresenceStore) Update(userID string, fields map[string]any) (PresenceRecord, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[userID]
	if !ok {
		return nil, false
	}
	maps.Copy(rec, fields)
	return maps.Clone(rec), true
}

func (p *PresenceStore) Get(userID string) (PresenceRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[userID]
	if !ok {
		return nil, false
	}
	return maps.Clone(rec), true
}

// Snapshot copies every record.
func (p *PresenceStore) Snapshot() map[string]PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]PresenceRecord, len(p.records))
	for userID, rec := range p.records {
		out[userID] = maps.Clone(rec)
	}
	return out
}
