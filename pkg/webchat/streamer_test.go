package webchat

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/persistence/chatstore"
	"github.com/go-go-golems/topicchat/pkg/responder"
	"github.com/go-go-golems/topicchat/pkg/session"
)

type recordingScheduler struct {
	mu   sync.Mutex
	reqs []TaskRequest
}

func (s *recordingScheduler) Schedule(req TaskRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
}

func fragmentsGenerator(frags ...string) responder.Generator {
	return responder.GeneratorFunc(func(_ context.Context, _ responder.Prompt) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for _, f := range frags {
				if !yield(f, nil) {
					return
				}
			}
		}
	})
}

func failingGenerator(after int, err error) responder.Generator {
	return responder.GeneratorFunc(func(_ context.Context, _ responder.Prompt) iter.Seq2[string, error] {
		return func(yield func(string, error) bool) {
			for i := 0; i < after; i++ {
				if !yield("x", nil) {
					return
				}
			}
			yield("", err)
		}
	})
}

type streamerFixture struct {
	store       *session.Store
	tasks       *recordingScheduler
	transcripts *chatstore.InMemoryTranscriptStore
	streamer    *Streamer
	topic       session.Topic
}

func newStreamerFixture(t *testing.T, gen responder.Generator) *streamerFixture {
	t.Helper()
	store := session.NewStore(agents.NewDefaultCatalog())
	store.CreateSession("c1")
	topic, err := store.CreateTopic("c1", agents.DefaultAgentID, "")
	require.NoError(t, err)

	f := &streamerFixture{
		store:       store,
		tasks:       &recordingScheduler{},
		transcripts: chatstore.NewInMemoryTranscriptStore(0),
		topic:       topic,
	}
	f.streamer, err = NewStreamer(StreamerConfig{
		Sessions:    store,
		Generator:   gen,
		Tasks:       f.tasks,
		Transcripts: f.transcripts,
	})
	require.NoError(t, err)
	return f
}

func TestStreamerCompletesAndRecordsExchange(t *testing.T) {
	f := newStreamerFixture(t, fragmentsGenerator("Hel", "lo", "!"))

	var got []string
	res := f.streamer.Stream(context.Background(), ChatRequest{
		ClientID: "c1",
		TopicID:  f.topic.ID,
		Text:     "hi",
		Settings: responder.DefaultSettings(),
	}, func(frag string) { got = append(got, frag) })

	require.Equal(t, StreamCompleted, res.State)
	require.NoError(t, res.Err)
	require.Equal(t, "Hello!", res.Text)
	require.Equal(t, 3, res.Fragments)
	require.Equal(t, []string{"Hel", "lo", "!"}, got)

	history, err := f.store.GetHistory("c1", f.topic.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, session.RoleUser, history[0].Role)
	require.Equal(t, "hi", history[0].Content)
	require.Equal(t, session.RoleAssistant, history[1].Role)
	require.Equal(t, strings.Join(got, ""), history[1].Content)

	require.Len(t, f.tasks.reqs, 1)
	require.Equal(t, TaskRequest{ClientID: "c1", TopicID: f.topic.ID, AgentID: agents.DefaultAgentID, Text: "hi"}, f.tasks.reqs[0])

	archived, err := f.transcripts.List(context.Background(), chatstore.ExchangeQuery{TopicID: f.topic.ID})
	require.NoError(t, err)
	require.Len(t, archived, 1)
	require.Equal(t, "Hello!", archived[0].AssistantText)
	require.Contains(t, archived[0].SettingsJSON, "temperature")
}

func TestStreamerUnknownTopicEmitsNothing(t *testing.T) {
	f := newStreamerFixture(t, fragmentsGenerator("a"))

	emitted := 0
	res := f.streamer.Stream(context.Background(), ChatRequest{ClientID: "c1", TopicID: "nope", Text: "hi"}, func(string) { emitted++ })

	require.Equal(t, StreamFailed, res.State)
	require.True(t, errors.Is(res.Err, session.ErrUnknownTopic))
	require.Zero(t, emitted)
	require.Empty(t, f.tasks.reqs)
}

func TestStreamerGeneratorFailureKeepsOnlyUserMessage(t *testing.T) {
	boom := errors.New("backend exploded")
	f := newStreamerFixture(t, failingGenerator(2, boom))

	emitted := 0
	res := f.streamer.Stream(context.Background(), ChatRequest{ClientID: "c1", TopicID: f.topic.ID, Text: "hi"}, func(string) { emitted++ })

	require.Equal(t, StreamFailed, res.State)
	require.True(t, errors.Is(res.Err, boom))
	require.Equal(t, 2, emitted)

	history, err := f.store.GetHistory("c1", f.topic.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, session.RoleUser, history[0].Role)

	archived, err := f.transcripts.List(context.Background(), chatstore.ExchangeQuery{TopicID: f.topic.ID})
	require.NoError(t, err)
	require.Empty(t, archived)
}

func TestStreamerCancelledContextFails(t *testing.T) {
	f := newStreamerFixture(t, responder.NewPlaceholder(responder.FragmenterFunc(responder.CharFragments), 0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.streamer.Stream(ctx, ChatRequest{ClientID: "c1", TopicID: f.topic.ID, Text: "hi"}, func(string) {})
	require.Equal(t, StreamFailed, res.State)
	require.True(t, errors.Is(res.Err, context.Canceled))
}

func TestStreamerAlternatesRolesOverExchanges(t *testing.T) {
	f := newStreamerFixture(t, fragmentsGenerator("ok"))
	for i := 0; i < 3; i++ {
		res := f.streamer.Stream(context.Background(), ChatRequest{ClientID: "c1", TopicID: f.topic.ID, Text: "m"}, func(string) {})
		require.Equal(t, StreamCompleted, res.State)
	}
	history, err := f.store.GetHistory("c1", f.topic.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	for i, m := range history {
		if i%2 == 0 {
			require.Equal(t, session.RoleUser, m.Role)
		} else {
			require.Equal(t, session.RoleAssistant, m.Role)
		}
	}
}

func TestNewStreamerRequiresDependencies(t *testing.T) {
	_, err := NewStreamer(StreamerConfig{Generator: fragmentsGenerator()})
	require.Error(t, err)
	_, err = NewStreamer(StreamerConfig{Sessions: session.NewStore(agents.NewDefaultCatalog())})
	require.Error(t, err)
}
