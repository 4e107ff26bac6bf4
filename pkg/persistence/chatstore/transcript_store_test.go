package chatstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func exchangeAt(topicID, clientID, user string, ms int64) Exchange {
	ts := time.UnixMilli(ms)
	return Exchange{
		ClientID:      clientID,
		TopicID:       topicID,
		AgentID:       "agent_default",
		UserText:      user,
		AssistantText: "reply to " + user,
		StartedAt:     ts,
		CompletedAt:   ts.Add(10 * time.Millisecond),
	}
}

func exerciseTranscriptStore(t *testing.T, s TranscriptStore) {
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, exchangeAt("t1", "c1", "one", 1000)))
	require.NoError(t, s.Save(ctx, exchangeAt("t1", "c1", "two", 2000)))
	require.NoError(t, s.Save(ctx, exchangeAt("t2", "c2", "three", 3000)))

	items, err := s.List(ctx, ExchangeQuery{TopicID: "t1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "two", items[0].UserText)
	require.Equal(t, "one", items[1].UserText)
	require.Equal(t, "reply to two", items[0].AssistantText)
	require.Equal(t, int64(2000), items[0].StartedAt.UnixMilli())

	byClient, err := s.List(ctx, ExchangeQuery{ClientID: "c2"})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	require.Equal(t, "t2", byClient[0].TopicID)

	limited, err := s.List(ctx, ExchangeQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, "three", limited[0].UserText)
}

func TestSQLiteTranscriptStore_SaveAndList(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)

	s, err := NewSQLiteTranscriptStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	exerciseTranscriptStore(t, s)
}

func TestSQLiteTranscriptStore_RejectsEmptyTopic(t *testing.T) {
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	s, err := NewSQLiteTranscriptStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.ErrorContains(t, s.Save(context.Background(), Exchange{}), "topicID is empty")
}

func TestSQLiteDSNForFileRejectsEmpty(t *testing.T) {
	_, err := SQLiteDSNForFile("  ")
	require.Error(t, err)
	_, err = NewSQLiteTranscriptStore("")
	require.Error(t, err)
}

func TestInMemoryTranscriptStore_SaveAndList(t *testing.T) {
	exerciseTranscriptStore(t, NewInMemoryTranscriptStore(0))
}

func TestInMemoryTranscriptStore_Trims(t *testing.T) {
	s := NewInMemoryTranscriptStore(2)
	ctx := context.Background()
	for i, u := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, exchangeAt("t1", "c1", u, int64(i))))
	}
	items, err := s.List(ctx, ExchangeQuery{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "c", items[0].UserText)
	require.Equal(t, "b", items[1].UserText)
}
