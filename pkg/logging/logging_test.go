package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInitJSON(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	var buf bytes.Buffer
	require.NoError(t, Init(Settings{Level: "debug", Format: "json"}, &buf))
	log.Debug().Str("k", "v").Msg("hello")
	require.Contains(t, buf.String(), `"message":"hello"`)
	require.Contains(t, buf.String(), `"k":"v"`)
}

func TestInitRejectsBadSettings(t *testing.T) {
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})

	require.Error(t, Init(Settings{Level: "loud"}, nil))
	require.Error(t, Init(Settings{Format: "xml"}, nil))
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	a := NewWatermill(zerolog.New(&buf))
	a.With(watermill.LogFields{"topic": "notifications"}).Error("publish failed", errors.New("boom"), watermill.LogFields{"n": 1})
	out := buf.String()
	require.Contains(t, out, `"component":"watermill"`)
	require.Contains(t, out, `"topic":"notifications"`)
	require.Contains(t, out, `"error":"boom"`)
	require.Contains(t, out, `"message":"publish failed"`)
}
