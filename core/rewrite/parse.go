package rewrite

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/core/sanitize"
)

// Stage identifies one step of the response recovery chain.
type Stage int

const (
	StageEnvelope Stage = iota + 1
	StageFence
	StageProse
	StageDirect
	StageArray
	StageFragments
	StageSanitized
)

var stageNames = map[Stage]string{
	StageEnvelope:  "envelope",
	StageFence:     "fence",
	StageProse:     "prose",
	StageDirect:    "direct",
	StageArray:     "array",
	StageFragments: "fragments",
	StageSanitized: "sanitized",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return "stage?"
}

var (
	fenceJSONRegex = regexp.MustCompile("```json\\n?|\\n?```")
	fenceRegex     = regexp.MustCompile("```\\n?|\\n?```")
	paragraphRegex = regexp.MustCompile(`\n\s*\n`)
	arrayRegex     = regexp.MustCompile(`(?s)\[\s*\{\s*"id".*\}\s*\]`)
	fragmentRegex  = regexp.MustCompile(`\{[^{}]*"id"\s*:\s*"[^"]*"[^{}]*"simplified"\s*:\s*"[^"]*"[^{}]*\}`)
)

// Parsed is the outcome of the recovery chain.
type Parsed struct {
	Texts map[string]string
	// Stage is the step that produced Texts.
	Stage Stage
}

// Parser turns raw model text into an id→text map. It never fails: the
// last stage always produces something.
type Parser struct {
	// OnStage, when set, is called as each stage is entered.
	OnStage func(Stage)
}

func (p *Parser) enter(s Stage) {
	if p.OnStage != nil {
		p.OnStage(s)
	}
}

// StripFences removes Markdown code-fence markers.
func StripFences(s string) string {
	switch {
	case strings.Contains(s, "```json"):
		return fenceJSONRegex.ReplaceAllString(s, "")
	case strings.Contains(s, "```"):
		return fenceRegex.ReplaceAllString(s, "")
	default:
		return s
	}
}

// ParseBody decodes the response envelope and then the model text. Only
// envelope failures are returned.
func (p *Parser) ParseBody(ctx context.Context, body []byte, batch core.Batch) (Parsed, EnvelopeKind, error) {
	p.enter(StageEnvelope)
	env, err := DecodeEnvelope(body)
	if err != nil {
		return Parsed{}, env.Kind, err
	}
	return p.ParseText(ctx, env.Text, batch), env.Kind, nil
}

// ParseText runs the recovery chain on the model's raw text.
func (p *Parser) ParseText(ctx context.Context, raw string, batch core.Batch) Parsed {
	logger := zerolog.Ctx(ctx).With().Int("batch", batch.Index).Logger()

	p.enter(StageFence)
	cleaned := StripFences(raw)
	trimmed := strings.TrimSpace(cleaned)

	if !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "{") {
		p.enter(StageProse)
		logger.Debug().Msg("response is not JSON, assigning prose positionally")
		return Parsed{Texts: prose(trimmed, batch), Stage: StageProse}
	}

	p.enter(StageDirect)
	texts, err := decodeReplies(&logger, trimmed)
	if err == nil {
		return Parsed{Texts: texts, Stage: StageDirect}
	}
	logger.Debug().Err(err).Msg("direct JSON parse failed")

	p.enter(StageArray)
	if m := arrayRegex.FindString(cleaned); m != "" {
		texts, err := decodeReplies(&logger, m)
		if err == nil {
			return Parsed{Texts: texts, Stage: StageArray}
		}
		logger.Debug().Err(err).Msg("embedded JSON array parse failed")
	}

	p.enter(StageFragments)
	if frags := fragmentRegex.FindAllString(cleaned, -1); len(frags) > 0 {
		texts, err := decodeReplies(&logger, "["+strings.Join(frags, ",")+"]")
		if err == nil && len(texts) > 0 {
			return Parsed{Texts: texts, Stage: StageFragments}
		}
		logger.Debug().Err(err).Int("fragments", len(frags)).Msg("reassembled fragments unusable")
	}

	p.enter(StageSanitized)
	logger.Warn().Msg("all structured parses failed, using sanitized response text for every unit")
	blob := sanitize.Flatten(cleaned)
	texts = make(map[string]string, len(batch.Units))
	for _, u := range batch.Units {
		if blob != "" {
			texts[u.ID] = blob
		} else {
			texts[u.ID] = u.Text
		}
	}
	return Parsed{Texts: texts, Stage: StageSanitized}
}

// prose assigns free-form text: a single unit takes all of it, otherwise
// blank-line separated paragraphs go to units by position and units past
// the last paragraph keep their original text.
func prose(trimmed string, batch core.Batch) map[string]string {
	texts := make(map[string]string, len(batch.Units))
	if len(batch.Units) == 1 {
		texts[batch.Units[0].ID] = trimmed
		return texts
	}

	paragraphs := paragraphRegex.Split(trimmed, -1)
	for i, u := range batch.Units {
		if i < len(paragraphs) {
			texts[u.ID] = strings.TrimSpace(paragraphs[i])
		} else {
			texts[u.ID] = u.Text
		}
	}
	return texts
}

// decodeReplies parses a JSON array of {id, simplified}. Entries missing
// either field, or carrying non-string values, are skipped.
func decodeReplies(logger *zerolog.Logger, s string) (map[string]string, error) {
	var entries []map[string]any
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, err
	}

	texts := make(map[string]string, len(entries))
	for i, e := range entries {
		id, _ := e["id"].(string)
		simplified, _ := e["simplified"].(string)
		if id == "" || simplified == "" {
			logger.Warn().Int("entry", i).Msg("skipping reply with missing id or simplified text")
			continue
		}
		texts[id] = simplified
	}
	return texts, nil
}
