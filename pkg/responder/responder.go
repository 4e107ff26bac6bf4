package responder

import (
	"context"
	"iter"

	"github.com/go-go-golems/topicchat/pkg/agents"
	"github.com/go-go-golems/topicchat/pkg/session"
)

// Prompt is everything a generator may look at to produce a reply.
type Prompt struct {
	Agent    agents.Descriptor
	Text     string
	Settings Settings
	// History holds the topic's messages before the current user message.
	History []session.Message
}

// Generator produces the fragments of one reply. The sequence stops at the first error;
// the error is yielded with an empty fragment.
type Generator interface {
	Generate(ctx context.Context, p Prompt) iter.Seq2[string, error]
}

type GeneratorFunc func(ctx context.Context, p Prompt) iter.Seq2[string, error]

func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) iter.Seq2[string, error] {
	return f(ctx, p)
}

// Collect drains a generator, returning the concatenated text.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var out []byte
	for frag, err := range seq {
		if err != nil {
			return string(out), err
		}
		out = append(out, frag...)
	}
	return string(out), nil
}
