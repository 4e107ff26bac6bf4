package responder

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

const (
	notificationTrigger = "send a notification"

	minChunkDelay  = 10 * time.Millisecond
	baseChunkDelay = 100 * time.Millisecond
)

// RequestsNotification reports whether the user explicitly asked for a notification.
func RequestsNotification(text string) bool {
	return strings.Contains(strings.ToLower(text), notificationTrigger)
}

// ChunkDelay is the simulated per-fragment latency: hotter settings stream faster.
func ChunkDelay(temperature float64) time.Duration {
	d := baseChunkDelay - time.Duration(temperature*float64(50*time.Millisecond))
	if d < minChunkDelay {
		return minChunkDelay
	}
	return d
}

// Placeholder is a deterministic stand-in for a model backend: it describes what it
// received and streams that description back.
type Placeholder struct {
	Fragmenter Fragmenter
	// Pacing scales ChunkDelay. Zero streams without any delay.
	Pacing float64
}

var _ Generator = (*Placeholder)(nil)

func NewPlaceholder(fragmenter Fragmenter, pacing float64) *Placeholder {
	if fragmenter == nil {
		fragmenter = FragmenterFunc(CharFragments)
	}
	return &Placeholder{Fragmenter: fragmenter, Pacing: pacing}
}

// Reply builds the full response text for a prompt.
func (p *Placeholder) Reply(prompt Prompt) string {
	if RequestsNotification(prompt.Text) {
		return "Okay, I've sent a notification."
	}
	name := prompt.Agent.Name
	if name == "" {
		name = "Unknown Agent"
	}
	if persona := strings.TrimSpace(prompt.Agent.SystemPrompt); persona != "" {
		name = fmt.Sprintf("%s [%s]", name, persona)
	}
	return fmt.Sprintf(
		"Okay, I received '%s'. Acting as %s (Temp: %.1f, TopK: %s, TopP: %s). I'll start a task for that and stream this response...",
		prompt.Text,
		name,
		prompt.Settings.Temperature,
		prompt.Settings.topKString(),
		prompt.Settings.topPString(),
	)
}

func (p *Placeholder) Generate(ctx context.Context, prompt Prompt) iter.Seq2[string, error] {
	text := p.Reply(prompt)
	delay := time.Duration(float64(ChunkDelay(prompt.Settings.Temperature)) * p.Pacing)
	return func(yield func(string, error) bool) {
		first := true
		for frag := range p.Fragmenter.Fragments(text) {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !first && delay > 0 {
				if err := sleepCtx(ctx, delay); err != nil {
					yield("", err)
					return
				}
			}
			first = false
			if !yield(frag, nil) {
				return
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
