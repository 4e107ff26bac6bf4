package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/topicchat/pkg/responder"
	"github.com/go-go-golems/topicchat/pkg/session"
)

func TestParseRequestVariants(t *testing.T) {
	req, typ, err := ParseRequest([]byte(`{"type":"list_topics"}`))
	require.NoError(t, err)
	require.Equal(t, TypeListTopics, typ)
	require.Equal(t, ListTopicsRequest{}, req)

	req, _, err = ParseRequest([]byte(`{"type":"create_topic","payload":{"agent_id":"agent_default","name":"mine"}}`))
	require.NoError(t, err)
	require.Equal(t, CreateTopicRequest{AgentID: "agent_default", Name: "mine"}, req)

	req, _, err = ParseRequest([]byte(`{"type":"delete_topic","payload":{"topic_id":"t1"}}`))
	require.NoError(t, err)
	require.Equal(t, DeleteTopicRequest{TopicID: "t1"}, req)

	req, _, err = ParseRequest([]byte(`{"type":"get_history","payload":{"topic_id":"t1"}}`))
	require.NoError(t, err)
	require.Equal(t, GetHistoryRequest{TopicID: "t1"}, req)
}

func TestParseChatMessageDefaultsSettings(t *testing.T) {
	req, _, err := ParseRequest([]byte(`{"type":"chat_message","payload":{"topic_id":"t1","message":"hi"}}`))
	require.NoError(t, err)
	chat, ok := req.(ChatMessageRequest)
	require.True(t, ok)
	require.Equal(t, "hi", chat.Message)
	require.Equal(t, responder.DefaultTemperature, chat.Settings.Temperature)
	require.Nil(t, chat.Settings.TopK)
	require.Nil(t, chat.Settings.TopP)
}

func TestParseChatMessageSettings(t *testing.T) {
	req, _, err := ParseRequest([]byte(`{"type":"chat_message","payload":{"topic_id":"t1","message":"hi","settings":{"temperature":1.2,"top_k":40,"top_p":0.9}}}`))
	require.NoError(t, err)
	chat := req.(ChatMessageRequest)
	require.Equal(t, 1.2, chat.Settings.Temperature)
	require.Equal(t, 40, *chat.Settings.TopK)
	require.Equal(t, 0.9, *chat.Settings.TopP)
}

func TestParseRequestMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":            `{"type":`,
		"missing type":        `{"payload":{}}`,
		"create no agent":     `{"type":"create_topic","payload":{"name":"x"}}`,
		"delete no topic":     `{"type":"delete_topic"}`,
		"history blank topic": `{"type":"get_history","payload":{"topic_id":"  "}}`,
		"chat no topic":       `{"type":"chat_message","payload":{"message":"hi"}}`,
		"chat no message":     `{"type":"chat_message","payload":{"topic_id":"t1"}}`,
		"chat bad payload":    `{"type":"chat_message","payload":"oops"}`,
		"chat bad top_k":      `{"type":"chat_message","payload":{"topic_id":"t1","message":"hi","settings":{"top_k":0}}}`,
		"chat bad top_p":      `{"type":"chat_message","payload":{"topic_id":"t1","message":"hi","settings":{"top_p":1.5}}}`,
		"chat bad temp":       `{"type":"chat_message","payload":{"topic_id":"t1","message":"hi","settings":{"temperature":-1}}}`,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := ParseRequest([]byte(frame))
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrMalformedRequest), err.Error())
		})
	}
}

func TestParseRequestUnknownTypeEchoesTag(t *testing.T) {
	_, typ, err := ParseRequest([]byte(`{"type":"dance","payload":{}}`))
	require.True(t, errors.Is(err, ErrUnknownCommand))
	require.Equal(t, "dance", typ)
	require.Contains(t, err.Error(), "dance")
}

func TestFrameMarshalShape(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	b, err := TopicList([]session.Topic{{ID: "t1", Name: "n", AgentID: "agent_default", CreatedAt: created}}).Marshal()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, "topic_list", got["type"])
	topics := got["payload"].(map[string]any)["topics"].([]any)
	require.Len(t, topics, 1)
	first := topics[0].(map[string]any)
	require.Equal(t, "t1", first["id"])
	require.Equal(t, "agent_default", first["agent_id"])
	require.Equal(t, "2024-05-01T10:00:00Z", first["created_at"])

	b, err = History("t1", nil).Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"history","payload":{"topic_id":"t1","messages":[]}}`, string(b))

	b, err = Error(CodeUnknownTopic, "nope", "").Marshal()
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"error","payload":{"message":"nope","code":"unknown_topic"}}`, string(b))
}
