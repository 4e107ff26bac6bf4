package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/topicchat/pkg/responder"
)

var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownCommand   = errors.New("unknown message type")
)

// Request is one validated inbound frame. Each frame type has its own variant.
type Request interface {
	RequestType() string
}

type ListTopicsRequest struct{}

type CreateTopicRequest struct {
	AgentID string
	Name    string
}

type DeleteTopicRequest struct {
	TopicID string
}

type GetHistoryRequest struct {
	TopicID string
}

type ChatMessageRequest struct {
	TopicID  string
	Message  string
	Settings responder.Settings
}

func (ListTopicsRequest) RequestType() string  { return TypeListTopics }
func (CreateTopicRequest) RequestType() string { return TypeCreateTopic }
func (DeleteTopicRequest) RequestType() string { return TypeDeleteTopic }
func (GetHistoryRequest) RequestType() string  { return TypeGetHistory }
func (ChatMessageRequest) RequestType() string { return TypeChatMessage }

type createTopicPayload struct {
	AgentID *string `json:"agent_id"`
	Name    *string `json:"name"`
}

type topicPayload struct {
	TopicID *string `json:"topic_id"`
}

type settingsPayload struct {
	Temperature *float64 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float64 `json:"top_p"`
}

type chatMessagePayload struct {
	TopicID  *string          `json:"topic_id"`
	Message  *string          `json:"message"`
	Settings *settingsPayload `json:"settings"`
}

// ParseRequest decodes one text frame. The returned error wraps ErrMalformedRequest or
// ErrUnknownCommand; the envelope type (if any could be read) is returned alongside.
func ParseRequest(data []byte) (Request, string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", errors.Wrap(ErrMalformedRequest, "invalid JSON frame")
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		return nil, "", errors.Wrap(ErrMalformedRequest, "missing type")
	}

	switch typ {
	case TypeListTopics:
		return ListTopicsRequest{}, typ, nil

	case TypeCreateTopic:
		var p createTopicPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, typ, err
		}
		agentID := deref(p.AgentID)
		if agentID == "" {
			return nil, typ, errors.Wrap(ErrMalformedRequest, "create_topic requires agent_id")
		}
		return CreateTopicRequest{AgentID: agentID, Name: deref(p.Name)}, typ, nil

	case TypeDeleteTopic, TypeGetHistory:
		var p topicPayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, typ, err
		}
		topicID := deref(p.TopicID)
		if topicID == "" {
			return nil, typ, errors.Wrapf(ErrMalformedRequest, "%s requires topic_id", typ)
		}
		if typ == TypeDeleteTopic {
			return DeleteTopicRequest{TopicID: topicID}, typ, nil
		}
		return GetHistoryRequest{TopicID: topicID}, typ, nil

	case TypeChatMessage:
		var p chatMessagePayload
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, typ, err
		}
		topicID := deref(p.TopicID)
		if topicID == "" {
			return nil, typ, errors.Wrap(ErrMalformedRequest, "chat_message requires topic_id")
		}
		if p.Message == nil || strings.TrimSpace(*p.Message) == "" {
			return nil, typ, errors.Wrap(ErrMalformedRequest, "chat_message requires message")
		}
		settings := responder.DefaultSettings()
		if p.Settings != nil {
			if p.Settings.Temperature != nil {
				settings.Temperature = *p.Settings.Temperature
			}
			settings.TopK = p.Settings.TopK
			settings.TopP = p.Settings.TopP
		}
		if err := settings.Validate(); err != nil {
			return nil, typ, errors.Wrap(ErrMalformedRequest, err.Error())
		}
		return ChatMessageRequest{TopicID: topicID, Message: *p.Message, Settings: settings}, typ, nil
	}

	return nil, typ, errors.Wrapf(ErrUnknownCommand, "%q", typ)
}

func decodePayload(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Wrap(ErrMalformedRequest, "invalid payload")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
