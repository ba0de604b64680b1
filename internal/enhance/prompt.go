package enhance

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// maxNarrativeChars caps the enhanced story length.
	maxNarrativeChars = 10000
	// maxVisualPromptChars caps the illustration prompt length.
	maxVisualPromptChars = 512
)

const narrativeSystemPrompt = `You are a ghostwriter for a paranormal encounter archive. Rewrite the witness account you are given into a longer, more atmospheric narrative. Preserve the author's structure, voice, and every factual detail of what they reported. Do not invent new events, names, or explanations. Write in prose only, with no headings or commentary.`

// narrativeUserPrompt assembles the rewrite request from the original report.
func narrativeUserPrompt(story, address string, encounterTime time.Time) string {
	var b strings.Builder
	b.WriteString("Witness account:\n")
	b.WriteString(strings.TrimSpace(story))
	b.WriteString("\n\n")
	if addr := strings.TrimSpace(address); addr != "" {
		fmt.Fprintf(&b, "Location: %s\n", addr)
	}
	if !encounterTime.IsZero() {
		fmt.Fprintf(&b, "Time of encounter: %s\n", encounterTime.UTC().Format("3:04 PM"))
	}
	b.WriteString("\nRewrite this account.")
	return b.String()
}

// Keyword lists scanned when deriving a visual prompt from the narrative.
// Order matters: earlier terms win within each list.
var (
	settingTerms = []string{
		"attic", "basement", "cellar", "hallway", "staircase", "stairwell",
		"bedroom", "kitchen", "corridor", "graveyard", "cemetery", "forest",
		"woods", "church", "chapel", "hospital", "school", "hotel", "bridge",
		"tunnel", "road", "field", "lake", "shore", "lighthouse", "mirror",
		"window", "door",
	}
	figureTerms = []string{
		"figure", "shadow", "silhouette", "woman", "man", "child", "apparition",
		"ghost", "spirit", "presence", "face", "hand", "footsteps", "voice",
		"whisper", "scream",
	}
	atmosphereTerms = []string{
		"fog", "mist", "cold", "frost", "darkness", "moonlight", "candlelight",
		"storm", "rain", "wind", "silence", "flickering",
	}
)

// locationTypes maps address substrings to a scene descriptor.
var locationTypes = []struct {
	substring string
	scene     string
}{
	{"church", "church"},
	{"chapel", "chapel"},
	{"cemetery", "cemetery"},
	{"graveyard", "graveyard"},
	{"hospital", "abandoned hospital"},
	{"school", "old school"},
	{"hotel", "hotel"},
	{"inn", "roadside inn"},
	{"manor", "manor house"},
	{"farm", "farmhouse"},
	{"forest", "forest"},
	{"wood", "woods"},
	{"bridge", "bridge"},
	{"station", "railway station"},
	{"lighthouse", "lighthouse"},
	{"mill", "old mill"},
}

// visualPrompt derives an illustration prompt from the enhanced narrative by
// keyword extraction, plus a scene hint from the free-text address. Always at
// most maxVisualPromptChars characters.
func visualPrompt(narrative, address string) string {
	lower := strings.ToLower(narrative)

	var parts []string
	if setting := firstMatch(lower, settingTerms); setting != "" {
		parts = append(parts, "a "+setting)
	}
	if figure := firstMatch(lower, figureTerms); figure != "" {
		parts = append(parts, "a spectral "+figure)
	}
	if mood := firstMatch(lower, atmosphereTerms); mood != "" {
		parts = append(parts, mood)
	}

	subject := "a haunted place"
	if len(parts) > 0 {
		subject = strings.Join(parts, ", ")
	}

	prompt := "A moody, atmospheric illustration of " + subject
	if scene := sceneFromAddress(address); scene != "" {
		prompt += " at " + scene
	}
	prompt += ". Dark muted palette, soft grain, dramatic lighting, no text."

	runes := []rune(prompt)
	if len(runes) > maxVisualPromptChars {
		prompt = string(runes[:maxVisualPromptChars])
	}
	return prompt
}

func firstMatch(lower string, terms []string) string {
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}

var titleCaser = cases.Title(language.English)

// sceneFromAddress guesses the kind of place from a free-text address and
// returns it title-cased for the prompt, or "" when nothing matches.
func sceneFromAddress(address string) string {
	lower := strings.ToLower(address)
	if strings.TrimSpace(lower) == "" {
		return ""
	}
	for _, lt := range locationTypes {
		if strings.Contains(lower, lt.substring) {
			return titleCaser.String(lt.scene)
		}
	}
	return ""
}

// truncateNarrative enforces the enhanced story length cap.
func truncateNarrative(text string) string {
	runes := []rune(text)
	if len(runes) <= maxNarrativeChars {
		return text
	}
	return string(runes[:maxNarrativeChars])
}
