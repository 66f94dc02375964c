package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lalith-99/strangersmeet/internal/apperr"
)

// Inbound is a decoded client frame: SubmitMessage or SetTyping.
type Inbound interface {
	inbound()
}

type SubmitMessage struct {
	Content string
}

type SetTyping struct {
	IsTyping bool
}

func (SubmitMessage) inbound() {}
func (SetTyping) inbound()     {}

type rawFrame struct {
	Type     string  `json:"type"`
	Content  *string `json:"content"`
	IsTyping *bool   `json:"is_typing"`
}

// DecodeFrame parses one client frame. maxLength caps message content in
// runes; zero disables the cap. Every rejection wraps apperr.ErrMalformedFrame.
func DecodeFrame(data []byte, maxLength int) (Inbound, error) {
	var raw rawFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid json: %w", apperr.ErrMalformedFrame)
	}

	switch raw.Type {
	case TypeNewMessage:
		if raw.Content == nil || strings.TrimSpace(*raw.Content) == "" {
			return nil, fmt.Errorf("message content is empty: %w", apperr.ErrMalformedFrame)
		}
		if maxLength > 0 && utf8.RuneCountInString(*raw.Content) > maxLength {
			return nil, fmt.Errorf("message content exceeds %d characters: %w", maxLength, apperr.ErrMalformedFrame)
		}
		return SubmitMessage{Content: *raw.Content}, nil

	case TypeTyping:
		if raw.IsTyping == nil {
			return nil, fmt.Errorf("typing frame without is_typing: %w", apperr.ErrMalformedFrame)
		}
		return SetTyping{IsTyping: *raw.IsTyping}, nil

	case "":
		return nil, fmt.Errorf("frame type is missing: %w", apperr.ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("unsupported frame type %q: %w", raw.Type, apperr.ErrMalformedFrame)
	}
}
