package chatstore

import (
	"context"
	"time"
)

// Exchange is one completed user/assistant round trip on a topic.
type Exchange struct {
	ClientID      string    `json:"client_id"`
	TopicID       string    `json:"topic_id"`
	AgentID       string    `json:"agent_id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	SettingsJSON  string    `json:"settings"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// ExchangeQuery describes filters for loading archived exchanges.
type ExchangeQuery struct {
	TopicID  string
	ClientID string
	Limit    int
}

// TranscriptStore archives completed exchanges for later inspection.
// It is write-mostly and is never used to restore live sessions.
type TranscriptStore interface {
	Save(ctx context.Context, ex Exchange) error
	List(ctx context.Context, q ExchangeQuery) ([]Exchange, error)
	Close() error
}
