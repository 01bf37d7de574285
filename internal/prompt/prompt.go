// Package prompt assembles the directive sent to the vision model as its
// system instruction.
package prompt

import (
	"fmt"
	"strings"

	"go-image-tagger/internal/fields"
	"go-image-tagger/internal/settings"
)

// ClosingInstruction ends every directive.
const ClosingInstruction = "Leave every other field as an empty string or an empty array."

// UserInstruction accompanies the image in the user message.
const UserInstruction = "Analyze this image and extract structured metadata for all requested fields."

var toneDirectives = map[settings.Tone]string{
	settings.ToneNeutral:      "Use a balanced and objective tone.",
	settings.ToneProfessional: "Use a formal, business-appropriate tone.",
	settings.ToneCasual:       "Use a friendly, conversational tone.",
	settings.ToneCreative:     "Use an imaginative, expressive tone.",
	settings.ToneTechnical:    "Use a detailed, precise, and technical tone.",
	settings.ToneMarketing:    "Use a persuasive, engaging, marketing-focused tone.",
}

// ToneOption describes a selectable tone.
type ToneOption struct {
	Tone        settings.Tone `json:"tone"`
	Description string        `json:"description"`
}

// Tones lists the selectable tones in display order.
func Tones() []ToneOption {
	return []ToneOption{
		{settings.ToneNeutral, "Balanced and objective"},
		{settings.ToneProfessional, "Formal and business-appropriate"},
		{settings.ToneCasual, "Friendly and conversational"},
		{settings.ToneCreative, "Imaginative and expressive"},
		{settings.ToneTechnical, "Detailed and precise"},
		{settings.ToneMarketing, "Persuasive and engaging"},
		{settings.ToneCustom, "Define your own tone"},
	}
}

// ToneDirective returns the directive sentence for tone. The custom tone
// uses custom verbatim.
func ToneDirective(tone settings.Tone, custom string) string {
	if tone == settings.ToneCustom {
		return strings.TrimSpace(custom)
	}
	return toneDirectives[tone]
}

// Assemble builds the directive: system message, tone, one line per enabled
// field in catalog order, closing instruction. Blank sections are left out.
func Assemble(s settings.Settings, catalog fields.Catalog) string {
	sections := make([]string, 0, 4)
	sections = appendSection(sections, s.SystemMessage)
	sections = appendSection(sections, ToneDirective(s.Tone, s.CustomTone))
	sections = appendSection(sections, fieldLines(s, catalog))
	sections = append(sections, ClosingInstruction)
	return strings.Join(sections, "\n\n")
}

func fieldLines(s settings.Settings, catalog fields.Catalog) string {
	var b strings.Builder
	for i, d := range s.ActiveFields(catalog) {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", d.Name, s.Instruction(d))
	}
	return b.String()
}

func appendSection(sections []string, text string) []string {
	if text = strings.TrimSpace(text); text != "" {
		sections = append(sections, text)
	}
	return sections
}
