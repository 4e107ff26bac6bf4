package webchat

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/topicchat/pkg/metrics"
	"github.com/go-go-golems/topicchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/topicchat/pkg/responder"
	"github.com/go-go-golems/topicchat/pkg/session"
)

type StreamState string

const (
	StreamIdle      StreamState = "idle"
	StreamStreaming StreamState = "streaming"
	StreamCompleted StreamState = "completed"
	StreamFailed    StreamState = "failed"
)

const transcriptSaveTimeout = 5 * time.Second

// ChatRequest is one user message to answer on a topic.
type ChatRequest struct {
	ClientID string
	TopicID  string
	Text     string
	Settings responder.Settings
}

type StreamResult struct {
	State     StreamState
	Text      string
	Fragments int
	Err       error
}

// Streamer runs one chat exchange: it records the user message, kicks off the
// background task, relays generated fragments and records the assistant reply.
type Streamer struct {
	sessions    *session.Store
	generator   responder.Generator
	tasks       TaskScheduler
	transcripts chatstore.TranscriptStore
	now         func() time.Time
}

type StreamerConfig struct {
	Sessions  *session.Store
	Generator responder.Generator
	// Tasks and Transcripts are optional.
	Tasks       TaskScheduler
	Transcripts chatstore.TranscriptStore
}

func NewStreamer(cfg StreamerConfig) (*Streamer, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("streamer: session store is nil")
	}
	if cfg.Generator == nil {
		return nil, errors.New("streamer: generator is nil")
	}
	return &Streamer{
		sessions:    cfg.Sessions,
		generator:   cfg.Generator,
		tasks:       cfg.Tasks,
		transcripts: cfg.Transcripts,
		now:         time.Now,
	}, nil
}

// Stream answers req, calling emit for every fragment in order. The assistant
// message is only recorded when the generator finishes without error.
func (s *Streamer) Stream(ctx context.Context, req ChatRequest, emit func(fragment string)) StreamResult {
	topic, err := s.sessions.GetTopic(req.ClientID, req.TopicID)
	if err != nil {
		return s.fail(StreamResult{}, err)
	}
	agent, ok := s.sessions.Catalog().Lookup(topic.AgentID)
	if !ok {
		return s.fail(StreamResult{}, errors.Wrapf(session.ErrUnknownAgent, "agent %q", topic.AgentID))
	}
	history, err := s.sessions.GetHistory(req.ClientID, req.TopicID)
	if err != nil {
		return s.fail(StreamResult{}, err)
	}
	if _, err := s.sessions.AppendMessage(req.ClientID, req.TopicID, session.RoleUser, req.Text); err != nil {
		return s.fail(StreamResult{}, err)
	}
	startedAt := s.now()

	if s.tasks != nil {
		s.tasks.Schedule(TaskRequest{
			ClientID: req.ClientID,
			TopicID:  req.TopicID,
			AgentID:  agent.ID,
			Text:     req.Text,
		})
	}

	res := StreamResult{State: StreamStreaming}
	var sb strings.Builder
	prompt := responder.Prompt{Agent: agent, Text: req.Text, Settings: req.Settings, History: history}
	for frag, err := range s.generator.Generate(ctx, prompt) {
		if err != nil {
			res.Text = sb.String()
			return s.fail(res, errors.Wrap(err, "generate"))
		}
		if ctx.Err() != nil {
			res.Text = sb.String()
			return s.fail(res, ctx.Err())
		}
		sb.WriteString(frag)
		res.Fragments++
		emit(frag)
	}
	res.Text = sb.String()

	if _, err := s.sessions.AppendMessage(req.ClientID, req.TopicID, session.RoleAssistant, res.Text); err != nil {
		// topic deleted mid-stream
		return s.fail(res, err)
	}
	res.State = StreamCompleted
	metrics.StreamsTotal.WithLabelValues(string(StreamCompleted)).Inc()
	metrics.StreamDuration.Observe(s.now().Sub(startedAt).Seconds())

	s.archive(req, agent.ID, res.Text, startedAt)
	return res
}

func (s *Streamer) fail(res StreamResult, err error) StreamResult {
	res.State = StreamFailed
	res.Err = err
	metrics.StreamsTotal.WithLabelValues(string(StreamFailed)).Inc()
	return res
}

func (s *Streamer) archive(req ChatRequest, agentID, reply string, startedAt time.Time) {
	if s.transcripts == nil {
		return
	}
	settings, err := json.Marshal(req.Settings)
	if err != nil {
		settings = []byte("{}")
	}
	ctx, cancel := context.WithTimeout(context.Background(), transcriptSaveTimeout)
	defer cancel()
	err = s.transcripts.Save(ctx, chatstore.Exchange{
		ClientID:      req.ClientID,
		TopicID:       req.TopicID,
		AgentID:       agentID,
		UserText:      req.Text,
		AssistantText: reply,
		SettingsJSON:  string(settings),
		StartedAt:     startedAt,
		CompletedAt:   s.now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "streamer").Str("topic_id", req.TopicID).Msg("transcript save failed")
	}
}
