package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/queryflowhq/queryflow/pkg/graph"
	"github.com/queryflowhq/queryflow/pkg/session"
	"github.com/queryflowhq/queryflow/pkg/state"
)

func scriptedRunner(events ...graph.Event) Runner {
	return func(ctx context.Context, st *state.AgentState) <-chan graph.Event {
		ch := make(chan graph.Event)
		go func() {
			defer close(ch)
			for _, ev := range events {
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch
	}
}

func startChatServer(t *testing.T, run Runner) (wsURL string, registry *session.Registry) {
	t.Helper()
	registry = session.NewRegistry()
	cs := NewChatServer(registry, run, ChatOptions{IdlePingSeconds: 30, MaxFrameBytes: 1 << 20}, nil)
	srv := httptest.NewServer(cs)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat", registry
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f ServerFrame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestChatServer_ConnectSendsConnectionEstablished(t *testing.T) {
	url, _ := startChatServer(t, scriptedRunner())
	conn := dial(t, url)

	f := readFrame(t, conn)
	assert.Equal(t, FrameConnectionEstablished, f.Type)
	assert.NotEmpty(t, f.SessionID)
}

func TestChatServer_ChatProducesOrderedFramesEndingInStreamComplete(t *testing.T) {
	url, _ := startChatServer(t, scriptedRunner(
		graph.Event{Node: "supervisor"},
		graph.Event{Node: "sql_agent"},
		graph.Event{Node: "end", Done: true},
		graph.Event{Done: true, HasFinal: true, Final: "the answer"},
	))
	conn := dial(t, url)
	_ = readFrame(t, conn) // connection_established

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameChat, ID: "q1", Content: "hi"}))

	var got []ServerFrame
	for i := 0; i < 5; i++ {
		got = append(got, readFrame(t, conn))
	}

	require.Len(t, got, 5)
	assert.Equal(t, FrameMessageReceived, got[0].Type)
	assert.Equal(t, FrameWorkflowProgress, got[1].Type)
	assert.Equal(t, "supervisor", got[1].Node)
	assert.Equal(t, FrameWorkflowProgress, got[2].Type)
	assert.Equal(t, "sql_agent", got[2].Node)
	assert.Equal(t, FrameStreamChunk, got[3].Type)
	assert.Equal(t, "the answer", got[3].Content)
	assert.Equal(t, FrameStreamComplete, got[4].Type)
	for _, f := range got {
		assert.Equal(t, "q1", f.ID)
	}
}

func TestChatServer_RunnerErrorProducesErrorFrameAsSoleTerminal(t *testing.T) {
	url, _ := startChatServer(t, scriptedRunner(
		graph.Event{Node: "supervisor"},
		graph.Event{Err: errors.New("boom")},
	))
	conn := dial(t, url)
	_ = readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameChat, ID: "q1", Content: "hi"}))

	_ = readFrame(t, conn) // message_received
	first := readFrame(t, conn)
	second := readFrame(t, conn)
	assert.Equal(t, FrameWorkflowProgress, first.Type)
	assert.Equal(t, FrameError, second.Type)
	assert.Equal(t, "boom", second.Message)
}

func TestChatServer_UnknownFrameTypeIsIgnoredConnectionStaysUsable(t *testing.T) {
	url, _ := startChatServer(t, scriptedRunner(
		graph.Event{Done: true, HasFinal: true, Final: "ok"},
	))
	conn := dial(t, url)
	_ = readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "not_a_real_type"}))
	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FrameChat, ID: "q1", Content: "hi"}))

	msgReceived := readFrame(t, conn)
	assert.Equal(t, FrameMessageReceived, msgReceived.Type)
}

func TestChatServer_PingReceivesPong(t *testing.T) {
	url, _ := startChatServer(t, scriptedRunner())
	conn := dial(t, url)
	_ = readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(ClientFrame{Type: FramePing}))
	f := readFrame(t, conn)
	assert.Equal(t, FramePong, f.Type)
}

func TestChatServer_ReconnectWithKnownSessionIDReplaysBufferedFrames(t *testing.T) {
	url, registry := startChatServer(t, scriptedRunner(
		graph.Event{Done: true, HasFinal: true, Final: "ok"},
	))

	conn1 := dial(t, url)
	established := readFrame(t, conn1)
	sessionID := established.SessionID

	require.NoError(t, conn1.WriteJSON(ClientFrame{Type: FrameChat, ID: "q1", Content: "hi"}))
	_ = readFrame(t, conn1) // message_received
	_ = readFrame(t, conn1) // stream_chunk
	_ = readFrame(t, conn1) // stream_complete
	conn1.Close()

	require.Eventually(t, func() bool {
		sess, err := registry.Get(sessionID)
		return err == nil && !sess.Attached()
	}, time.Second, 10*time.Millisecond)

	conn2 := dial(t, fmt.Sprintf("%s?session_id=%s", url, sessionID))
	reconnectEstablished := readFrame(t, conn2)
	assert.Equal(t, sessionID, reconnectEstablished.SessionID)

	replayed := readFrame(t, conn2)
	assert.Equal(t, FrameMessageReceived, replayed.Type)
	assert.Equal(t, "q1", replayed.ID)
}
