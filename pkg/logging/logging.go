package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Settings struct {
	Level      string
	Format     string // text|json
	WithCaller bool
}

// Init configures the global zerolog logger.
func Init(s Settings, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if lvl := strings.TrimSpace(s.Level); lvl != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(lvl))
		if err != nil {
			return errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer
	switch strings.ToLower(strings.TrimSpace(s.Format)) {
	case "", "text":
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		w = out
	default:
		return errors.Errorf("invalid log format %q", s.Format)
	}

	ctx := zerolog.New(w).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	return nil
}
