package responder

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/weaviate/tiktoken-go"
)

const (
	FragmentModeChar  = "char"
	FragmentModeWord  = "word"
	FragmentModeToken = "token"
)

// Fragmenter cuts a finished text into stream fragments. Concatenating the fragments
// must give back the input.
type Fragmenter interface {
	Fragments(text string) iter.Seq[string]
}

type FragmenterFunc func(text string) iter.Seq[string]

func (f FragmenterFunc) Fragments(text string) iter.Seq[string] { return f(text) }

// CharFragments yields one rune at a time.
func CharFragments(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, r := range text {
			if !yield(string(r)) {
				return
			}
		}
	}
}

// WordFragments yields each word together with the whitespace that follows it.
func WordFragments(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		start := 0
		inSpace := false
		for i, r := range text {
			if unicode.IsSpace(r) {
				inSpace = true
				continue
			}
			if inSpace && i > start {
				if !yield(text[start:i]) {
					return
				}
				start = i
			}
			inSpace = false
		}
		if start < len(text) {
			yield(text[start:])
		}
	}
}

// TokenFragmenter splits text along tiktoken token boundaries. Tokens that end inside a
// multi-byte rune are held back until the rune is complete.
type TokenFragmenter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenFragmenter(encoding string) (*TokenFragmenter, error) {
	if strings.TrimSpace(encoding) == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "load tiktoken encoding %s", encoding)
	}
	return &TokenFragmenter{enc: enc}, nil
}

func (f *TokenFragmenter) Fragments(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		pending := ""
		for _, id := range f.enc.Encode(text, nil, nil) {
			pending += f.enc.Decode([]int{id})
			if !utf8.ValidString(pending) {
				continue
			}
			if !yield(pending) {
				return
			}
			pending = ""
		}
		if pending != "" {
			yield(pending)
		}
	}
}

// NewFragmenter maps a fragment mode name to an implementation.
func NewFragmenter(mode string) (Fragmenter, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", FragmentModeChar:
		return FragmenterFunc(CharFragments), nil
	case FragmentModeWord:
		return FragmenterFunc(WordFragments), nil
	case FragmentModeToken:
		return NewTokenFragmenter("cl100k_base")
	}
	return nil, errors.Errorf("unknown fragment mode %q", mode)
}
