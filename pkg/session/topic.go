package session

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is one turn of a topic. It is never modified after being appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Topic is a snapshot of a conversation thread's metadata.
// AgentID is fixed when the topic is created.
type Topic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

type topicState struct {
	Topic
	messages []Message
}

func (t *topicState) append(role Role, content string, now time.Time) Message {
	if n := len(t.messages); n > 0 {
		if last := t.messages[n-1].Timestamp; now.Before(last) {
			now = last
		}
	}
	m := Message{Role: role, Content: content, Timestamp: now}
	t.messages = append(t.messages, m)
	return m
}

func (t *topicState) history() []Message {
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
