package rewrite

import (
	"encoding/json"
	"strings"

	"gitlab.com/tozd/go/errors"
)

// ErrUnrecognizedEnvelope means neither known response shape was present,
// so there is no model text to recover anything from.
var ErrUnrecognizedEnvelope = errors.Base("unrecognized API response format")

// EnvelopeKind discriminates the response shapes the service may use.
type EnvelopeKind int

const (
	EnvelopeUnknown EnvelopeKind = iota
	// EnvelopeCompletion is {"completion_message":{"content":{"text":...}}}.
	EnvelopeCompletion
	// EnvelopeChoices is the legacy {"choices":[{"message":{"content":...}}]}.
	EnvelopeChoices
)

func (k EnvelopeKind) String() string {
	switch k {
	case EnvelopeCompletion:
		return "completion_message"
	case EnvelopeChoices:
		return "choices"
	default:
		return "unknown"
	}
}

// Envelope is the decoded response: the shape it arrived in and the model's
// raw text.
type Envelope struct {
	Kind EnvelopeKind
	Text string
}

type wireEnvelope struct {
	CompletionMessage *struct {
		Content *struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"completion_message"`
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// DecodeEnvelope classifies body and extracts the model text.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return Envelope{}, errors.Errorf("%w: %s", ErrUnrecognizedEnvelope, err.Error())
	}

	switch {
	case w.CompletionMessage != nil && w.CompletionMessage.Content != nil && w.CompletionMessage.Content.Text != "":
		return Envelope{Kind: EnvelopeCompletion, Text: w.CompletionMessage.Content.Text}, nil
	case len(w.Choices) > 0 && w.Choices[0].Message != nil:
		text := w.Choices[0].Message.Content
		if strings.TrimSpace(text) == "" {
			return Envelope{Kind: EnvelopeChoices}, errors.Errorf("%w: empty message content", ErrUnrecognizedEnvelope)
		}
		return Envelope{Kind: EnvelopeChoices, Text: text}, nil
	default:
		return Envelope{}, errors.WithStack(ErrUnrecognizedEnvelope)
	}
}
