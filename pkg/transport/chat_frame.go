package transport

import "encoding/json"

// FrameType identifies a chat frame's message type (§4.J, §6).
type FrameType string

const (
	// Client -> server.
	FrameChat          FrameType = "chat"
	FrameContextUpdate FrameType = "context_update"
	FramePing          FrameType = "ping"

	// Server -> client.
	FrameConnectionEstablished FrameType = "connection_established"
	FrameMessageReceived       FrameType = "message_received"
	FrameWorkflowProgress      FrameType = "workflow_progress"
	FrameStreamChunk           FrameType = "stream_chunk"
	FrameStreamComplete        FrameType = "stream_complete"
	FrameError                 FrameType = "error"
	FramePong                  FrameType = "pong"
)

// ClientFrame is an inbound frame as sent by the chat client.
type ClientFrame struct {
	Type    FrameType      `json:"type"`
	ID      string         `json:"id,omitempty"`
	Content string         `json:"content,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ServerFrame is an outbound frame as emitted by the server.
type ServerFrame struct {
	Type      FrameType `json:"type"`
	ID        string    `json:"id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Node      string    `json:"node,omitempty"`
	Content   string    `json:"content,omitempty"`
	Message   string    `json:"message,omitempty"`
}

func (f ServerFrame) marshal() ([]byte, error) {
	return json.Marshal(f)
}

func connectionEstablished(sessionID string) ServerFrame {
	return ServerFrame{Type: FrameConnectionEstablished, SessionID: sessionID}
}

func messageReceived(id string) ServerFrame {
	return ServerFrame{Type: FrameMessageReceived, ID: id}
}

func workflowProgress(id, node string) ServerFrame {
	return ServerFrame{Type: FrameWorkflowProgress, ID: id, Node: node}
}

func streamChunk(id, content string) ServerFrame {
	return ServerFrame{Type: FrameStreamChunk, ID: id, Content: content}
}

func streamComplete(id string) ServerFrame {
	return ServerFrame{Type: FrameStreamComplete, ID: id}
}

func errorFrame(id, message string) ServerFrame {
	return ServerFrame{Type: FrameError, ID: id, Message: message}
}

func pongFrame() ServerFrame {
	return ServerFrame{Type: FramePong}
}
