package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AgentStatus is the lifecycle state of a single agent invocation
type AgentStatus string

const (
	StatusInitialized AgentStatus = "initialized"
	StatusProcessing  AgentStatus = "processing"
	StatusCompleted   AgentStatus = "completed"
	StatusError       AgentStatus = "error"
)

// Terminal reports whether no further transition is allowed from s
func (s AgentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// AgentMetadata tracks one invocation's status and timing.
// Status only moves initialized -> processing -> completed|error.
type AgentMetadata struct {
	Status       AgentStatus `bson:"status" json:"status"`
	InvocationID string      `bson:"invocation_id" json:"invocation_id"`
	CreatedAt    time.Time   `bson:"created_at" json:"created_at"`
	StartedAt    *time.Time  `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletedAt  *time.Time  `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	DurationMs   int64       `bson:"duration_ms" json:"duration_ms"`
	Error        string      `bson:"error,omitempty" json:"error,omitempty"`
}

// NewAgentMetadata returns metadata in the initialized state
func NewAgentMetadata(invocationID string, now time.Time) AgentMetadata {
	return AgentMetadata{
		Status:       StatusInitialized,
		InvocationID: invocationID,
		CreatedAt:    now,
	}
}

// Begin moves initialized -> processing
func (m *AgentMetadata) Begin(now time.Time) error {
	if m.Status != StatusInitialized {
		return fmt.Errorf("invalid status transition %s -> %s", m.Status, StatusProcessing)
	}
	m.Status = StatusProcessing
	m.StartedAt = &now
	return nil
}

// Complete moves processing -> completed
func (m *AgentMetadata) Complete(now time.Time) error {
	if m.Status != StatusProcessing {
		return fmt.Errorf("invalid status transition %s -> %s", m.Status, StatusCompleted)
	}
	m.Status = StatusCompleted
	m.finish(now)
	return nil
}

// Fail moves any non-terminal state to error and records the message.
// A terminal state is left untouched.
func (m *AgentMetadata) Fail(now time.Time, err error) {
	if m.Status.Terminal() {
		return
	}
	m.Status = StatusError
	if err != nil {
		m.Error = err.Error()
	}
	m.finish(now)
}

func (m *AgentMetadata) finish(now time.Time) {
	m.CompletedAt = &now
	if m.StartedAt != nil {
		m.DurationMs = now.Sub(*m.StartedAt).Milliseconds()
	}
}

// AgentResult is the envelope returned by every agent invocation and the
// record shape of the agent_results collection.
type AgentResult struct {
	ID              primitive.ObjectID     `bson:"_id,omitempty" json:"id,omitempty"`
	Agent           string                 `bson:"agent" json:"agent"`
	AgentID         string                 `bson:"agent_id" json:"agent_id"`
	Input           map[string]interface{} `bson:"input" json:"input"`
	Output          Output                 `bson:"output" json:"output"`
	Metadata        AgentMetadata          `bson:"metadata" json:"metadata"`
	VectorEmbedding []float64              `bson:"vector_embedding,omitempty" json:"vector_embedding,omitempty"`
	DocumentID      *primitive.ObjectID    `bson:"document_id,omitempty" json:"document_id,omitempty"`
	Timestamp       time.Time              `bson:"timestamp" json:"timestamp"`
	CreatedAt       time.Time              `bson:"created_at" json:"-"`
	UpdatedAt       time.Time              `bson:"updated_at" json:"-"`

	// StorageError annotates a failed write; it never changes the outcome
	StorageError string `bson:"-" json:"storage_error,omitempty"`
}
