// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session is the Session Orchestrator (§4.J): a registry of chat
// sessions keyed by id, each holding the in-flight workflow state and a
// bounded replay buffer of recently produced outbound frames so a client
// that reconnects with a known session id can pick its stream back up
// instead of losing everything in flight. Grounded on the teacher's
// pkg/session in-memory Service: a mutex-guarded map keyed by id, a
// uuid-generated id when the caller doesn't supply one, and the same
// Get/Create/Delete shape — generalized from Hector's app/user-scoped,
// agent.State/agent.Events-backed Session down to what a single-tenant
// chat socket needs: one workflow state plus a frame replay buffer.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/queryflowhq/queryflow/pkg/state"
)

// ErrNotFound is returned when a session id is unknown to the Registry.
var ErrNotFound = errors.New("session: not found")

// replayCapacity bounds how many recent outbound frames a detached session
// retains for replay to a reconnecting client.
const replayCapacity = 256

// Session is one chat session: a stable id, the workflow state belonging
// to its current (or most recent) run, and a bounded ring of outbound
// frames for reconnection replay.
type Session struct {
	id           string
	createdAt    time.Time
	mu           sync.Mutex
	lastActivity time.Time
	attached     bool
	state        *state.AgentState
	replay       [][]byte
}

func newSession(id string) *Session {
	now := time.Now()
	return &Session{id: id, createdAt: now, lastActivity: now}
}

// ID returns the session's stable identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was first created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Touch marks the session as active right now.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// LastActivity returns the last time the session was touched.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// SetAttached records whether a live connection currently owns this
// session. A reconnect finds attached == false and knows it can resume.
func (s *Session) SetAttached(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = v
}

// Attached reports whether a live connection currently owns this session.
func (s *Session) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// State returns the workflow state for the session's current or most
// recent run, or nil if none has started yet.
func (s *Session) State() *state.AgentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState attaches the workflow state for a new run.
func (s *Session) SetState(st *state.AgentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// Record appends a raw, already-marshaled outbound frame to the replay
// buffer, evicting the oldest frame once replayCapacity is exceeded. The
// session package stores frames as opaque bytes; it has no notion of the
// transport's frame schema.
func (s *Session) Record(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replay = append(s.replay, frame)
	if len(s.replay) > replayCapacity {
		s.replay = s.replay[len(s.replay)-replayCapacity:]
	}
}

// Replay returns a snapshot of buffered outbound frames in production
// order, for a reconnecting client to catch up on.
func (s *Session) Replay() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.replay))
	copy(out, s.replay)
	return out
}

// Registry is the in-memory store of live and detached sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create allocates a new session, generating an id if none is supplied.
func (r *Registry) Create(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	s := newSession(id)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = s
	return s
}

// Get retrieves a session by id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session, e.g. once a disconnect drops its state per
// §5's cancellation rule.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len reports how many sessions the registry currently holds.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
