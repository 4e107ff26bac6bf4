package responder

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	DefaultTemperature = 0.7
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
)

var ErrInvalidSettings = errors.New("invalid generation settings")

// Settings are supplied with every chat request and are never stored on the topic.
type Settings struct {
	Temperature float64  `json:"temperature"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

func DefaultSettings() Settings {
	return Settings{Temperature: DefaultTemperature}
}

func (s Settings) Validate() error {
	if s.Temperature < MinTemperature || s.Temperature > MaxTemperature {
		return errors.Wrapf(ErrInvalidSettings, "temperature %v outside [%v, %v]", s.Temperature, MinTemperature, MaxTemperature)
	}
	if s.TopK != nil && *s.TopK <= 0 {
		return errors.Wrapf(ErrInvalidSettings, "top_k must be positive, got %d", *s.TopK)
	}
	if s.TopP != nil && (*s.TopP < 0 || *s.TopP > 1) {
		return errors.Wrapf(ErrInvalidSettings, "top_p %v outside [0, 1]", *s.TopP)
	}
	return nil
}

func (s Settings) topKString() string {
	if s.TopK == nil {
		return "N/A"
	}
	return fmt.Sprintf("%d", *s.TopK)
}

func (s Settings) topPString() string {
	if s.TopP == nil {
		return "N/A"
	}
	return fmt.Sprintf("%v", *s.TopP)
}
