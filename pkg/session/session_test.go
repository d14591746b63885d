package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateGeneratesIDWhenNoneSupplied(t *testing.T) {
	r := NewRegistry()
	s := r.Create("")
	assert.NotEmpty(t, s.ID())
}

func TestRegistry_CreateHonorsSuppliedID(t *testing.T) {
	r := NewRegistry()
	s := r.Create("client-chosen-id")
	assert.Equal(t, "client-chosen-id", s.ID())
}

func TestRegistry_GetReturnsErrNotFoundForUnknownID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_GetRetrievesPreviouslyCreatedSession(t *testing.T) {
	r := NewRegistry()
	created := r.Create("s1")
	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestRegistry_DeleteRemovesSession(t *testing.T) {
	r := NewRegistry()
	r.Create("s1")
	r.Delete("s1")
	_, err := r.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_ReplayReturnsFramesInProductionOrder(t *testing.T) {
	s := newSession("s1")
	s.Record([]byte("one"))
	s.Record([]byte("two"))
	s.Record([]byte("three"))

	replay := s.Replay()
	require.Len(t, replay, 3)
	assert.Equal(t, []byte("one"), replay[0])
	assert.Equal(t, []byte("two"), replay[1])
	assert.Equal(t, []byte("three"), replay[2])
}

func TestSession_ReplayEvictsOldestFramesPastCapacity(t *testing.T) {
	s := newSession("s1")
	for i := 0; i < replayCapacity+10; i++ {
		s.Record([]byte{byte(i)})
	}

	replay := s.Replay()
	require.Len(t, replay, replayCapacity)
	assert.Equal(t, byte(10), replay[0][0])
}

func TestSession_AttachedDefaultsFalseAndIsSettable(t *testing.T) {
	s := newSession("s1")
	assert.False(t, s.Attached())
	s.SetAttached(true)
	assert.True(t, s.Attached())
}
