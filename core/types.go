package core

import (
	"fmt"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/net/html"
)

// LanguageOriginal keeps the page in its source language.
const LanguageOriginal = "original"

// Mode is a rewriting style.
type Mode string

const (
	ModeELI5            Mode = "eli5Simplify"
	ModeVisualClarity   Mode = "visualClarity"
	ModeMindIlluminator Mode = "mindIlluminator"
	ModeTechExplainer   Mode = "techExplainer"
	// ModeCustom selects the free-text CustomInstructions.
	ModeCustom Mode = "customPrompt"
)

// Modes lists the predefined modes plus the custom sentinel.
var Modes = []Mode{ModeELI5, ModeVisualClarity, ModeMindIlluminator, ModeTechExplainer, ModeCustom}

// ErrInvalidTransform is returned by Transform.Validate.
var ErrInvalidTransform = errors.Base("invalid transform")

// Transform is the instruction set for one run. It is not modified while a
// run is in progress.
type Transform struct {
	Mode               Mode   `json:"mode"`
	CustomInstructions string `json:"customInstructions,omitempty"`
	TargetLanguage     string `json:"targetLanguage"`
	Intensity          int    `json:"intensity"`
}

// DefaultTransform matches the extension's first-run settings.
func DefaultTransform() Transform {
	return Transform{
		Mode:           ModeELI5,
		TargetLanguage: LanguageOriginal,
		Intensity:      3,
	}
}

// Translating reports whether output should be in another language.
func (t Transform) Translating() bool {
	lang := strings.TrimSpace(t.TargetLanguage)
	return lang != "" && lang != LanguageOriginal
}

// Validate checks the mode and intensity range.
func (t Transform) Validate() error {
	known := false
	for _, m := range Modes {
		if t.Mode == m {
			known = true
			break
		}
	}
	if !known {
		return errors.Errorf("%w: unknown mode %q", ErrInvalidTransform, t.Mode)
	}
	if t.Intensity < 1 || t.Intensity > 5 {
		return errors.Errorf("%w: intensity %d outside 1-5", ErrInvalidTransform, t.Intensity)
	}
	return nil
}

// TextUnit is one span of text eligible for rewriting. Node and Container
// point into the document; the document owns them.
type TextUnit struct {
	// ID is only meaningful inside the batch that assigned it.
	ID        string
	Node      *html.Node
	Container *html.Node
	Text      string
	HasMarkup bool
	// Markup is the container's inner HTML, set only when HasMarkup.
	Markup string
}

// Batch is a bounded, ordered group of units sent in one request.
type Batch struct {
	Index int
	Units []TextUnit
}

// UnitID returns the batch-local id of the unit at position i.
func UnitID(i int) string {
	return fmt.Sprintf("text_%d", i)
}

// NewBatch copies units and stamps them with batch-local ids.
func NewBatch(index int, units []TextUnit) Batch {
	b := Batch{Index: index, Units: make([]TextUnit, len(units))}
	for i, u := range units {
		u.ID = UnitID(i)
		b.Units[i] = u
	}
	return b
}

// Result is what a run reports back to the shell.
type Result struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`

	Collected     int `json:"collected"`
	Batches       int `json:"batches"`
	FailedBatches int `json:"failed_batches"`

	// Region is the content region the run collected from.
	Region *html.Node `json:"-"`
}

// RewrittenPage carries everything the renderers need after a run.
type RewrittenPage struct {
	Meta      PageMetadata
	Transform Transform
	Result    Result
	// Document is the full serialized document after rewriting.
	Document string
	// Content is the content region's node in the rewritten document.
	Content  *html.Node
	Markdown string
	Changes  []Change
}

// Change is a serializable view of one mutation.
type Change struct {
	Kind     string `json:"kind"`
	Original string `json:"original"`
	Current  string `json:"current"`
}
