package protocol

import (
	"encoding/json"
	"time"

	"github.com/go-go-golems/topicchat/pkg/session"
)

// Inbound frame types.
const (
	TypeListTopics  = "list_topics"
	TypeCreateTopic = "create_topic"
	TypeDeleteTopic = "delete_topic"
	TypeGetHistory  = "get_history"
	TypeChatMessage = "chat_message"
)

// Outbound frame types.
const (
	TypeConnected    = "connected"
	TypeTopicList    = "topic_list"
	TypeTopicCreated = "topic_created"
	TypeTopicDeleted = "topic_deleted"
	TypeHistory      = "history"
	TypeMessageChunk = "message_chunk"
	TypeMessageEnd   = "message_end"
	TypeNotification = "notification"
	TypeError        = "error"
)

// Error codes carried by error frames.
const (
	CodeUnknownAgent     = "unknown_agent"
	CodeUnknownTopic     = "unknown_topic"
	CodeMalformedRequest = "malformed_request"
	CodeUnknownCommand   = "unknown_command"
	CodeInternalError    = "internal_error"
	CodeStreamFailed     = "stream_failed"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Frame is an outbound frame; Payload is marshalled as-is.
type Frame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (f Frame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

type TopicSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	AgentID   string    `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(t session.Topic) TopicSummary {
	return TopicSummary{ID: t.ID, Name: t.Name, AgentID: t.AgentID, CreatedAt: t.CreatedAt}
}

type TopicListPayload struct {
	Topics []TopicSummary `json:"topics"`
}

type TopicDeletedPayload struct {
	TopicID string `json:"topic_id"`
}

type HistoryPayload struct {
	TopicID  string            `json:"topic_id"`
	Messages []session.Message `json:"messages"`
}

type MessageChunkPayload struct {
	TopicID string `json:"topic_id"`
	Chunk   string `json:"chunk"`
}

type MessageEndPayload struct {
	TopicID string `json:"topic_id"`
}

type NotificationPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Title   string `json:"title,omitempty"`
	Level   string `json:"level,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TopicID string `json:"topic_id,omitempty"`
}

type ConnectedPayload struct {
	ClientID string `json:"client_id"`
}

func Connected(clientID string) Frame {
	return Frame{Type: TypeConnected, Payload: ConnectedPayload{ClientID: clientID}}
}

func TopicList(topics []session.Topic) Frame {
	out := make([]TopicSummary, 0, len(topics))
	for _, t := range topics {
		out = append(out, summarize(t))
	}
	return Frame{Type: TypeTopicList, Payload: TopicListPayload{Topics: out}}
}

func TopicCreated(t session.Topic) Frame {
	return Frame{Type: TypeTopicCreated, Payload: summarize(t)}
}

func TopicDeleted(topicID string) Frame {
	return Frame{Type: TypeTopicDeleted, Payload: TopicDeletedPayload{TopicID: topicID}}
}

func History(topicID string, messages []session.Message) Frame {
	if messages == nil {
		messages = []session.Message{}
	}
	return Frame{Type: TypeHistory, Payload: HistoryPayload{TopicID: topicID, Messages: messages}}
}

func MessageChunk(topicID, chunk string) Frame {
	return Frame{Type: TypeMessageChunk, Payload: MessageChunkPayload{TopicID: topicID, Chunk: chunk}}
}

func MessageEnd(topicID string) Frame {
	return Frame{Type: TypeMessageEnd, Payload: MessageEndPayload{TopicID: topicID}}
}

func Notification(n NotificationPayload) Frame {
	return Frame{Type: TypeNotification, Payload: n}
}

func Error(code, message, topicID string) Frame {
	return Frame{Type: TypeError, Payload: ErrorPayload{Message: message, Code: code, TopicID: topicID}}
}
