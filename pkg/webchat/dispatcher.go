package webchat

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/metrics"
	"github.com/go-go-golems/topicchat/pkg/protocol"
	"github.com/go-go-golems/topicchat/pkg/session"
)

// ErrHandlerPanic is returned by Dispatch when a handler panicked; the
// connection has already been scheduled for closing.
var ErrHandlerPanic = errors.New("handler panic")

// Dispatcher routes inbound frames to session and streaming operations and
// replies through the registry. Dispatch failures never close the connection,
// except after a recovered panic.
type Dispatcher struct {
	registry *ConnectionRegistry
	sessions *session.Store
	streamer *Streamer
	queues   *TopicQueues
}

func NewDispatcher(registry *ConnectionRegistry, streamer *Streamer, queues *TopicQueues) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatcher: registry is nil")
	}
	if streamer == nil {
		return nil, errors.New("dispatcher: streamer is nil")
	}
	if queues == nil {
		queues = NewTopicQueues()
	}
	return &Dispatcher{
		registry: registry,
		sessions: registry.Sessions(),
		streamer: streamer,
		queues:   queues,
	}, nil
}

// Dispatch handles one inbound text frame. ctx is the connection context.
func (d *Dispatcher) Dispatch(ctx context.Context, clientID string, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "dispatcher").
				Str("client_id", clientID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked, closing connection")
			metrics.HandlerPanics.Inc()
			d.registry.SendAndClose(clientID, protocol.Error(protocol.CodeInternalError, "internal server error", ""))
			err = errors.Wrapf(ErrHandlerPanic, "%v", r)
		}
	}()

	req, typ, perr := protocol.ParseRequest(data)
	if typ == "" {
		typ = "invalid"
	}
	metrics.FramesReceived.WithLabelValues(metricsFrameType(typ)).Inc()
	if perr != nil {
		d.replyParseError(clientID, perr)
		return nil
	}

	switch r := req.(type) {
	case protocol.ListTopicsRequest:
		d.sendTopicList(clientID)
	case protocol.CreateTopicRequest:
		d.createTopic(clientID, r)
	case protocol.DeleteTopicRequest:
		d.deleteTopic(clientID, r)
	case protocol.GetHistoryRequest:
		d.getHistory(clientID, r)
	case protocol.ChatMessageRequest:
		d.chatMessage(ctx, clientID, r)
	default:
		panic(fmt.Sprintf("unhandled request variant %T", req))
	}
	return nil
}

func (d *Dispatcher) replyParseError(clientID string, err error) {
	code := protocol.CodeMalformedRequest
	if errors.Is(err, protocol.ErrUnknownCommand) {
		code = protocol.CodeUnknownCommand
	}
	log.Debug().Err(err).Str("component", "dispatcher").Str("client_id", clientID).Msg("rejected frame")
	d.registry.SendTo(clientID, protocol.Error(code, err.Error(), ""))
}

func (d *Dispatcher) sendTopicList(clientID string) {
	d.registry.SendTo(clientID, protocol.TopicList(d.sessions.ListTopics(clientID)))
}

func (d *Dispatcher) createTopic(clientID string, r protocol.CreateTopicRequest) {
	t, err := d.sessions.CreateTopic(clientID, r.AgentID, r.Name)
	if err != nil {
		d.replyError(clientID, err, "")
		return
	}
	d.registry.SendTo(clientID, protocol.TopicCreated(t))
	d.sendTopicList(clientID)
}

func (d *Dispatcher) deleteTopic(clientID string, r protocol.DeleteTopicRequest) {
	if err := d.sessions.DeleteTopic(clientID, r.TopicID); err != nil {
		d.replyError(clientID, err, r.TopicID)
		return
	}
	d.registry.SendTo(clientID, protocol.TopicDeleted(r.TopicID))
	d.sendTopicList(clientID)
}

func (d *Dispatcher) getHistory(clientID string, r protocol.GetHistoryRequest) {
	msgs, err := d.sessions.GetHistory(clientID, r.TopicID)
	if err != nil {
		d.replyError(clientID, err, r.TopicID)
		return
	}
	d.registry.SendTo(clientID, protocol.History(r.TopicID, msgs))
}

func (d *Dispatcher) chatMessage(ctx context.Context, clientID string, r protocol.ChatMessageRequest) {
	if _, err := d.sessions.GetTopic(clientID, r.TopicID); err != nil {
		d.replyError(clientID, err, r.TopicID)
		return
	}
	req := ChatRequest{ClientID: clientID, TopicID: r.TopicID, Text: r.Message, Settings: r.Settings}
	pos := d.queues.Enqueue(ctx, clientID, r.TopicID, func(ctx context.Context) {
		d.runChat(ctx, req)
	})
	if pos == 0 {
		log.Debug().Str("component", "dispatcher").Str("client_id", clientID).Str("topic_id", r.TopicID).Msg("chat message dropped, shutting down")
		return
	}
	if pos > 1 {
		log.Debug().Str("component", "dispatcher").Str("client_id", clientID).Str("topic_id", r.TopicID).Int("position", pos).Msg("chat message queued")
	}
}

func (d *Dispatcher) runChat(ctx context.Context, req ChatRequest) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("component", "dispatcher").
				Str("client_id", req.ClientID).
				Str("topic_id", req.TopicID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("chat handler panicked, closing connection")
			metrics.HandlerPanics.Inc()
			d.registry.SendAndClose(req.ClientID, protocol.Error(protocol.CodeInternalError, "internal server error", req.TopicID))
		}
	}()

	res := d.streamer.Stream(ctx, req, func(fragment string) {
		d.registry.SendTo(req.ClientID, protocol.MessageChunk(req.TopicID, fragment))
	})
	switch res.State {
	case StreamCompleted:
		d.registry.SendTo(req.ClientID, protocol.MessageEnd(req.TopicID))
	case StreamFailed:
		if ctx.Err() != nil {
			// connection gone, nobody to tell
			return
		}
		if errors.Is(res.Err, session.ErrUnknownTopic) {
			d.replyError(req.ClientID, res.Err, req.TopicID)
			return
		}
		log.Warn().Err(res.Err).Str("component", "dispatcher").Str("client_id", req.ClientID).Str("topic_id", req.TopicID).Msg("stream failed")
		d.registry.SendTo(req.ClientID, protocol.Error(protocol.CodeStreamFailed, "response generation failed", req.TopicID))
	}
}

func (d *Dispatcher) replyError(clientID string, err error, topicID string) {
	code := protocol.CodeInternalError
	switch {
	case errors.Is(err, session.ErrUnknownTopic):
		code = protocol.CodeUnknownTopic
	case errors.Is(err, session.ErrUnknownAgent):
		code = protocol.CodeUnknownAgent
	case errors.Is(err, session.ErrUnknownClient):
		code = protocol.CodeUnknownTopic
	}
	d.registry.SendTo(clientID, protocol.Error(code, err.Error(), topicID))
}

// metricsFrameType keeps label cardinality bounded for unknown frame types.
func metricsFrameType(typ string) string {
	switch typ {
	case protocol.TypeListTopics, protocol.TypeCreateTopic, protocol.TypeDeleteTopic,
		protocol.TypeGetHistory, protocol.TypeChatMessage, "invalid":
		return typ
	}
	return "unknown"
}
