package feed

import (
	"xray/internal/app/record"
	"xray/internal/app/store"
)

// MessageType represents the type of message in the wire protocol
type MessageType string

const (
	// MessageSubscribe is sent from client to server to subscribe to topics
	MessageSubscribe MessageType = "subscribe"
	// MessageLogs carries a full filtered snapshot
	MessageLogs MessageType = "logs"
	// MessageCounts carries the aggregate counters
	MessageCounts MessageType = "counts"
	// MessageProjects carries the distinct project list
	MessageProjects MessageType = "projects"
)

// Topics returns every streamable topic
func Topics() []MessageType {
	return []MessageType{MessageLogs, MessageCounts, MessageProjects}
}

// SubscribeRequest is sent from client to server to choose topics
type SubscribeRequest struct {
	Type   MessageType `json:"type"`
	Topics []string    `json:"topics"` // empty = all topics
}

// Frame is sent from server to client. Each frame is a complete restatement
// of its topic, never a diff: a client can always render from the last frame
// of each topic alone.
type Frame struct {
	Type      MessageType     `json:"type"`
	Records   []record.Record `json:"records,omitempty"`
	Bookmarks map[string]bool `json:"bookmarks,omitempty"`
	Counts    *store.Counts   `json:"counts,omitempty"`
	Projects  []string        `json:"projects,omitempty"`
	Error     string          `json:"error,omitempty"`
}
