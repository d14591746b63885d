// Package transport is the transport boundary of §4.J: a WebSocket, JSON
// message-framed chat protocol in front of the compiled workflow graph.
// Grounded on the teacher's a2a/server.go WebSocket handler
// (handleStreamTask): gorilla/websocket upgrade, conn.ReadJSON/WriteJSON
// framing, and running the workflow in a background goroutine while
// streaming its events back over the socket — generalized from a
// one-shot task stream into a long-lived, multi-turn chat session with
// reconnection and backpressure.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/queryflowhq/queryflow/pkg/graph"
	"github.com/queryflowhq/queryflow/pkg/session"
	"github.com/queryflowhq/queryflow/pkg/state"
)

// ChatOptions configures the chat transport (§6).
type ChatOptions struct {
	IdlePingSeconds int
	MaxFrameBytes   int64
}

// DefaultChatOptions returns §6's documented defaults.
func DefaultChatOptions() ChatOptions {
	return ChatOptions{IdlePingSeconds: 30, MaxFrameBytes: 1 << 20}
}

// Runner runs the compiled workflow graph against a new AgentState and
// streams its events back. It is satisfied by *graph.Compiled.Run bound
// to a fixed consolidator node name.
type Runner func(ctx context.Context, st *state.AgentState) <-chan graph.Event

// BindRunner adapts a compiled graph plus its consolidator node name into
// a Runner, so ChatServer never has to know the orchestration.NodeName /
// graph.NodeName string conversion wiring.Build already resolved.
func BindRunner(compiled *graph.Compiled, consolidatorNode graph.NodeName) Runner {
	return func(ctx context.Context, st *state.AgentState) <-chan graph.Event {
		return compiled.Run(ctx, st, consolidatorNode)
	}
}

// ChatServer serves the §4.J chat transport over WebSocket.
type ChatServer struct {
	sessions *session.Registry
	run      Runner
	opts     ChatOptions
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewChatServer builds a chat transport server. logger may be nil, in
// which case slog.Default() is used.
func NewChatServer(sessions *session.Registry, run Runner, opts ChatOptions, logger *slog.Logger) *ChatServer {
	if opts.IdlePingSeconds <= 0 {
		opts.IdlePingSeconds = DefaultChatOptions().IdlePingSeconds
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = DefaultChatOptions().MaxFrameBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatServer{
		sessions: sessions,
		run:      run,
		opts:     opts,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		logger:   logger,
	}
}

// ServeHTTP upgrades the request to a WebSocket and serves one chat
// session for the life of the connection.
func (cs *ChatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := cs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.logger.Error("chat: websocket upgrade failed", "error", err)
		return
	}

	requestedID := r.URL.Query().Get("session_id")
	sess, resumed := cs.resolveSession(requestedID)
	sess.SetAttached(true)
	defer sess.SetAttached(false)

	conn := newChatConn(ws, cs.opts.MaxFrameBytes)
	defer conn.Close()

	idlePing := time.Duration(cs.opts.IdlePingSeconds) * time.Second
	go conn.writePump(idlePing)

	connCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := conn.Send(connCtx, connectionEstablished(sess.ID())); err != nil {
		return
	}
	if resumed {
		cs.replay(connCtx, conn, sess)
	}

	cs.readLoop(connCtx, cancel, conn, sess)

	// A disconnect drops the workflow state per §5; only the replay
	// buffer (already flushed to the client or now stale) survives.
	sess.SetState(nil)
}

func (cs *ChatServer) resolveSession(requestedID string) (*session.Session, bool) {
	if requestedID != "" {
		if sess, err := cs.sessions.Get(requestedID); err == nil && !sess.Attached() {
			return sess, true
		}
		// Unknown, or already attached elsewhere: never hand out a fresh
		// session under the client's requested id, since that would
		// silently orphan whatever the existing owner holds.
		return cs.sessions.Create(""), false
	}
	return cs.sessions.Create(""), false
}

func (cs *ChatServer) replay(ctx context.Context, conn *chatConn, sess *session.Session) {
	for _, raw := range sess.Replay() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var frame ServerFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		_ = conn.Send(ctx, frame)
	}
}

// readLoop reads client frames until the socket errors or closes,
// dispatching each to its handler. Disconnecting cancels cancel, which
// propagates into any in-flight workflow run's context.
func (cs *ChatServer) readLoop(ctx context.Context, cancel context.CancelFunc, conn *chatConn, sess *session.Session) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		sess.Touch()

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			cs.logger.Warn("chat: ignoring malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case FrameChat:
			cs.handleChat(ctx, conn, sess, frame)
		case FrameContextUpdate:
			// Context is folded into the next chat's AgentState on creation;
			// nothing to do for an in-flight run.
		case FramePing:
			cs.send(ctx, conn, sess, pongFrame())
		default:
			cs.logger.Info("chat: ignoring unknown frame type", "type", frame.Type)
		}
	}
}

// handleChat runs one chat turn to completion, translating the graph's
// event stream into the ordered sequence of frames §4.J requires: exactly
// one message_received immediately, zero or more workflow_progress, then
// exactly one terminal frame (stream_complete or error).
func (cs *ChatServer) handleChat(ctx context.Context, conn *chatConn, sess *session.Session, frame ClientFrame) {
	cs.send(ctx, conn, sess, messageReceived(frame.ID))

	st := state.New(ctx, frame.Content, frame.Context)
	sess.SetState(st)

	var terminal bool
	for ev := range cs.run(ctx, st) {
		switch {
		case ev.Err != nil:
			cs.send(ctx, conn, sess, errorFrame(frame.ID, ev.Err.Error()))
			terminal = true
		case ev.HasFinal:
			if ev.Final != "" {
				cs.send(ctx, conn, sess, streamChunk(frame.ID, ev.Final))
			}
			cs.send(ctx, conn, sess, streamComplete(frame.ID))
			terminal = true
		case ev.Done:
			// Reached End with no final response yet to report; keep
			// draining in case a final-response event still follows.
		case ev.Node != "":
			cs.send(ctx, conn, sess, workflowProgress(frame.ID, ev.Node))
		}
	}
	if !terminal {
		cs.send(ctx, conn, sess, streamComplete(frame.ID))
	}
}

// send marshals and records the frame into the session's replay buffer
// before handing it to the connection, so a frame that reaches the wire
// is always the same one a reconnecting client would be replayed.
func (cs *ChatServer) send(ctx context.Context, conn *chatConn, sess *session.Session, frame ServerFrame) {
	raw, err := frame.marshal()
	if err != nil {
		cs.logger.Error("chat: failed to marshal outbound frame", "error", err)
		return
	}
	sess.Record(raw)
	if err := conn.Send(ctx, frame); err != nil {
		cs.logger.Debug("chat: send failed, connection likely gone", "error", err)
	}
}
