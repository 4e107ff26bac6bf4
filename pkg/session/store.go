package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"

	"github.com/go-go-golems/topicchat/pkg/agents"
)

var (
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrUnknownTopic  = errors.New("unknown topic")
	ErrUnknownClient = errors.New("unknown client")
)

// ClientSession is the per-connection topic table.
type ClientSession struct {
	ClientID string

	mu     sync.Mutex
	topics map[string]*topicState
	order  []string
}

func newClientSession(clientID string) *ClientSession {
	return &ClientSession{ClientID: clientID, topics: map[string]*topicState{}}
}

// Store owns every client's session. Sessions are never shared between clients.
type Store struct {
	catalog *agents.Catalog

	mu       sync.RWMutex
	sessions map[string]*ClientSession

	now   func() time.Time
	newID func() string
}

type StoreOption func(*Store)

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func WithIDGenerator(newID func() string) StoreOption {
	return func(s *Store) {
		if newID != nil {
			s.newID = newID
		}
	}
}

func NewStore(catalog *agents.Catalog, opts ...StoreOption) *Store {
	s := &Store{
		catalog:  catalog,
		sessions: map[string]*ClientSession{},
		now:      time.Now,
		newID:    func() string { return ulid.Make().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Catalog() *agents.Catalog { return s.catalog }

// CreateSession registers an empty session. Creating an existing session is a no-op.
func (s *Store) CreateSession(clientID string) *ClientSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cs, ok := s.sessions[clientID]; ok {
		return cs
	}
	cs := newClientSession(clientID)
	s.sessions[clientID] = cs
	return cs
}

// DeleteSession drops the session and all of its topics. Unknown ids are ignored.
func (s *Store) DeleteSession(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, clientID)
}

func (s *Store) HasSession(clientID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[clientID]
	return ok
}

func (s *Store) session(clientID string) (*ClientSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.sessions[clientID]
	return cs, ok
}

// DefaultTopicName is used when a topic is created without a name.
func DefaultTopicName(agent agents.Descriptor) string {
	return fmt.Sprintf("Chat (%s)", agent.Name)
}

func (s *Store) CreateTopic(clientID, agentID, name string) (Topic, error) {
	agent, ok := s.catalog.Lookup(agentID)
	if !ok {
		return Topic{}, errors.Wrapf(ErrUnknownAgent, "agent %q", agentID)
	}
	cs, ok := s.session(clientID)
	if !ok {
		return Topic{}, errors.Wrapf(ErrUnknownClient, "client %q", clientID)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTopicName(agent)
	}
	t := &topicState{Topic: Topic{
		ID:        s.newID(),
		Name:      name,
		AgentID:   agent.ID,
		CreatedAt: s.now(),
	}}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.topics[t.ID] = t
	cs.order = append(cs.order, t.ID)
	return t.Topic, nil
}

func (s *Store) DeleteTopic(clientID, topicID string) error {
	cs, ok := s.session(clientID)
	if !ok {
		return errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.topics[topicID]; !ok {
		return errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	delete(cs.topics, topicID)
	for i, id := range cs.order {
		if id == topicID {
			cs.order = append(cs.order[:i], cs.order[i+1:]...)
			break
		}
	}
	return nil
}

// ListTopics returns the client's topics in creation order.
func (s *Store) ListTopics(clientID string) []Topic {
	cs, ok := s.session(clientID)
	if !ok {
		return []Topic{}
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]Topic, 0, len(cs.order))
	for _, id := range cs.order {
		out = append(out, cs.topics[id].Topic)
	}
	return out
}

func (s *Store) GetTopic(clientID, topicID string) (Topic, error) {
	cs, ok := s.session(clientID)
	if !ok {
		return Topic{}, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	t, ok := cs.topics[topicID]
	if !ok {
		return Topic{}, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	return t.Topic, nil
}

// GetHistory returns a copy of the topic's messages in append order.
func (s *Store) GetHistory(clientID, topicID string) ([]Message, error) {
	cs, ok := s.session(clientID)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	t, ok := cs.topics[topicID]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	return t.history(), nil
}

func (s *Store) AppendMessage(clientID, topicID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, errors.Errorf("invalid role %q", role)
	}
	cs, ok := s.session(clientID)
	if !ok {
		return Message{}, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	t, ok := cs.topics[topicID]
	if !ok {
		return Message{}, errors.Wrapf(ErrUnknownTopic, "topic %q", topicID)
	}
	return t.append(role, content, s.now()), nil
}
