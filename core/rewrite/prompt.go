package rewrite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gaurav-prasanna/easyread/core"
)

// modeInstructions are the persona lines for the predefined modes.
var modeInstructions = map[core.Mode]string{
	core.ModeELI5:            "You are a helpful assistant that explains complex concepts in extremely simple terms. Explain like I'm 5 years old, using simple language, examples, and analogies.",
	core.ModeVisualClarity:   `You are a helpful assistant that enhances the clarity of text for better comprehension. Focus on making the content more scannable and visually clear. Identify and highlight key points by wrapping them in <span class="highlighted">important text</span> tags. Create clear structure with short paragraphs, use simple language, and make complex concepts easy to understand. Preserve all the important information from the original text.`,
	core.ModeMindIlluminator: "You are a helpful assistant that simplifies text while maintaining clarity. Make complex concepts easier to understand and illuminate key ideas.",
	core.ModeTechExplainer:   "You are a helpful assistant that explains technical concepts clearly. Break down complex ideas into understandable components.",
}

const defaultCustomInstruction = "You are a helpful assistant that transforms text according to custom instructions while maintaining the core meaning."

// languageNames are display names for the supported target languages.
var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish (Español)",
	"fr": "French (Français)",
	"de": "German (Deutsch)",
	"it": "Italian (Italiano)",
	"pt": "Portuguese (Português)",
	"ar": "Arabic (العربية)",
	"hi": "Hindi (हिन्दी)",
	"id": "Indonesian (Bahasa Indonesia)",
	"tl": "Tagalog (Filipino)",
	"th": "Thai (ไทย)",
	"vi": "Vietnamese (Tiếng Việt)",
}

const exampleSource = "The intricate mechanisms underlying cognitive processes in the human brain remain an enigma to contemporary neuroscience."

// translatedExamples answer exampleSource in each supported language.
var translatedExamples = map[string]string{
	"en": "How the brain thinks is still a mystery to modern brain science.",
	"es": "Cómo piensa el cerebro sigue siendo un misterio para la neurociencia moderna.",
	"fr": "Comment le cerveau pense reste un mystère pour la neuroscience moderne.",
	"de": "Wie das Gehirn denkt, ist für die moderne Neurowissenschaft immer noch ein Rätsel.",
	"it": "Come funziona il pensiero nel cervello è ancora un mistero per la neuroscienza moderna.",
	"pt": "Como o cérebro pensa ainda é um mistério para a neurociência moderna.",
	"ar": "كيف يفكر الدماغ لا يزال لغزاً للعلوم العصبية الحديثة.",
	"hi": "दिमाग कैसे सोचता है यह आधुनिक न्यूरोसाइंस के लिए अभी भी एक रहस्य है।",
	"id": "Bagaimana otak berpikir masih menjadi misteri bagi ilmu saraf modern.",
	"tl": "Ang pag-iisip ng utak ay nanatiling hiwaga sa modernong agham ng utak.",
	"th": "วิธีการทำงานของสมองยังคงเป็นปริศนาสำหรับวิทยาศาสตร์สมองสมัยใหม่",
	"vi": "Cách não bộ suy nghĩ vẫn còn là điều bí ẩn đối với khoa học não bộ hiện đại.",
}

// LanguageName resolves a language code to its display name. Unknown codes
// are returned unchanged so the instruction still names what was asked for.
func LanguageName(code string) string {
	code = strings.TrimSpace(code)
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return code
}

// SupportedLanguages returns the codes with a known display name.
func SupportedLanguages() []string {
	return []string{"en", "es", "fr", "de", "it", "pt", "ar", "hi", "id", "tl", "th", "vi"}
}

func exampleFor(code string) string {
	if ex, ok := translatedExamples[strings.ToLower(strings.TrimSpace(code))]; ok {
		return ex
	}
	return fmt.Sprintf("(the simplified sentence, written entirely in %s)", LanguageName(code))
}

// StyleInstruction is the persona for t's mode with the intensity wording
// appended.
func StyleInstruction(t core.Transform) string {
	var base string
	if t.Mode == core.ModeCustom {
		custom := strings.TrimSpace(t.CustomInstructions)
		if custom == "" {
			base = defaultCustomInstruction
		} else {
			base = fmt.Sprintf("You are a helpful assistant transforming text according to these instructions: %s. Keep all proper names, places, and quotes unchanged.", custom)
		}
	} else {
		instr, ok := modeInstructions[t.Mode]
		if !ok {
			instr = modeInstructions[core.ModeELI5]
		}
		base = instr
	}

	switch {
	case t.Intensity > 0 && t.Intensity <= 2:
		base += " Focus on maximum simplicity, using shorter sentences and basic vocabulary."
	case t.Intensity >= 4:
		base += " Maintain more nuance and sophistication in your simplification."
	}
	return base
}

// SystemPrompt builds the system message for t.
func SystemPrompt(t core.Transform) string {
	if t.Translating() {
		return translationPrompt(t.TargetLanguage)
	}
	return simplificationPrompt(StyleInstruction(t))
}

func simplificationPrompt(style string) string {
	var b strings.Builder
	b.WriteString(style)
	b.WriteString(`

OUTPUT FORMAT REQUIREMENTS:
I will provide you with a JSON array of text items, each with an "id", "content", and possibly "hasHtml" and "htmlContent" fields.
You must respond with a JSON array where each item has:
1. The original "id"
2. A "simplified" field containing the simplified version of the content

Format requirements:
- Return ONLY valid JSON without any explanations or comments
- Maintain the same key points and facts as the original
- Use simpler words and shorter sentences
- DO NOT completely rewrite the content
- DO NOT add any new information
- For items with "hasHtml": true, preserve all HTML tags (like <a>, <strong>, etc.) in your output
- Only simplify the text content, NOT the HTML tags themselves
`)
	writeExample(&b, translatedExamples["en"])
	return b.String()
}

func translationPrompt(code string) string {
	name := LanguageName(code)
	upper := strings.ToUpper(name)

	var b strings.Builder
	fmt.Fprintf(&b, `You are a professional translator specializing in %[1]s.
Your task is to translate text from any language to %[1]s while also simplifying it.

CRITICAL INSTRUCTIONS:
1. YOU MUST TRANSLATE ALL TEXT INTO %[2]s
2. The output MUST be in %[1]s only
3. Simplify the text to make it easier to understand
4. Maintain the same key points and facts as the original
5. Use simpler words and shorter sentences in %[1]s
6. IMPORTANT: For items marked with "hasHtml": true, preserve all HTML tags (like <a>, <strong>, etc.) in your output
7. Only translate the text content, NOT the HTML tags themselves

OUTPUT FORMAT REQUIREMENTS:
I will provide you with a JSON array of text items, each with an "id", "content", and possibly "hasHtml" and "htmlContent" fields.
You must respond with a JSON array where each item has:
1. The original "id"
2. A "simplified" field containing the TRANSLATED and simplified version in %[1]s
3. If the original had "hasHtml": true, your "simplified" field should include the preserved HTML tags

Format requirements:
- Return ONLY valid JSON without any explanations or comments
- TRANSLATE all content into %[1]s
- DO NOT keep any text in the original language
- Use simpler words and shorter sentences in %[1]s
- PRESERVE all HTML tags when present in the original
- DO NOT add any additional HTML formatting not present in the original
`, name, upper)
	writeExample(&b, exampleFor(code))
	return b.String()
}

func writeExample(b *strings.Builder, output string) {
	in, _ := indentJSON([]Item{{ID: core.UnitID(0), Content: exampleSource}})
	out, _ := indentJSON([]Reply{{ID: core.UnitID(0), Simplified: output}})
	b.WriteString("\nExample input:\n")
	b.Write(in)
	b.WriteString("\n\nExample output:\n")
	b.Write(out)
}

// UserMessage embeds the batch payload behind a directive restating the
// output format.
func UserMessage(t core.Transform, items []Item) (string, error) {
	payload, err := indentJSON(items)
	if err != nil {
		return "", err
	}

	if t.Translating() {
		upper := strings.ToUpper(LanguageName(t.TargetLanguage))
		return fmt.Sprintf(`TRANSLATE THE FOLLOWING TEXT INTO %[1]s AND SIMPLIFY IT.
YOUR RESPONSE MUST BE IN %[1]s ONLY.
RETURN ONLY JSON FORMAT WITH NO EXPLANATIONS.
PRESERVE ALL HTML TAGS IN ITEMS MARKED WITH "hasHtml": true.

%[2]s`, upper, payload), nil
	}
	return "Simplify these text items (preserve the JSON format in your response and maintain all HTML tags when present):\n" + string(payload), nil
}

// indentJSON marshals v with two-space indentation and without escaping
// markup, so the model sees the tags it has to preserve.
func indentJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Item is one entry of the request payload.
type Item struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	HasHTML     bool   `json:"hasHtml"`
	HTMLContent string `json:"htmlContent,omitempty"`
}

// Reply is one entry of the expected response payload.
type Reply struct {
	ID         string `json:"id"`
	Simplified string `json:"simplified"`
}

// Items serializes a batch in order.
func Items(batch core.Batch) []Item {
	items := make([]Item, len(batch.Units))
	for i, u := range batch.Units {
		items[i] = Item{
			ID:      u.ID,
			Content: u.Text,
			HasHTML: u.HasMarkup,
		}
		if u.HasMarkup {
			items[i].HTMLContent = u.Markup
		}
	}
	return items
}
