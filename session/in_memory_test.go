package session

import (
	"sync"
	"testing"

	"github.com/hupe1980/groupchat/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ core.SessionStore = (*InMemoryStore)(nil)

func TestInMemoryStore_Lifecycle(t *testing.T) {
	s := NewInMemoryStore()

	sess, err := s.Create("s1", "research")
	require.NoError(t, err)
	assert.Equal(t, "research", sess.Workflow)

	_, err = s.Create("s1", "research")
	require.ErrorIs(t, err, ErrExists)

	require.NoError(t, s.AppendEvent("s1", core.NewUserMessageEvent("s1", "start")))
	require.NoError(t, s.ApplyDelta("s1", map[string]any{"task_started": true}))

	got, err := s.Get("s1")
	require.NoError(t, err)
	require.Len(t, got.Events, 1)
	v, ok := got.GetState("task_started")
	require.True(t, ok)
	assert.Equal(t, true, v)

	_, err = s.Create("s0", "research")
	require.NoError(t, err)
	assert.Equal(t, []string{"s0", "s1"}, s.List())

	s.Delete("s1")
	s.Delete("s0")
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.List())
}

func TestInMemoryStore_UnknownSession(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.AppendEvent("missing", core.NewEvent("missing", "a")), ErrNotFound)
	require.ErrorIs(t, s.ApplyDelta("missing", map[string]any{"k": 1}), ErrNotFound)
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("s1", "weather")
	require.NoError(t, err)
	require.NoError(t, s.ApplyDelta("s1", map[string]any{"sections": map[string]any{"a": "x"}}))

	got, err := s.Get("s1")
	require.NoError(t, err)
	got.State["sections"].(map[string]any)["a"] = "mutated"
	got.AddEvent(core.NewEvent("s1", "a"))

	again, err := s.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "x", again.State["sections"].(map[string]any)["a"])
	assert.Empty(t, again.Events)
}

func TestInMemoryStore_ConcurrentAppends(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Create("s1", "weather")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendEvent("s1", core.NewEvent("s1", "a"))
		}()
	}
	wg.Wait()

	got, err := s.Get("s1")
	require.NoError(t, err)
	assert.Len(t, got.Events, 20)
}
