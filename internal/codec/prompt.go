package codec

import (
	"regexp"
	"strings"

	"github.com/aggrelay/aggrelay/internal/domain"
)

const (
	// MaxStopSequences caps how many synthesized stop sequences a request
	// may carry.
	MaxStopSequences = 5

	// DefaultUserName and DefaultCharacterName are the role-based display
	// name fallbacks.
	DefaultUserName      = "User"
	DefaultCharacterName = "Character"
)

// namePattern matches a leading "Name: " marker in message text.
var namePattern = regexp.MustCompile(`^([A-Za-z0-9_][A-Za-z0-9_ '.-]{0,63}):\s`)

// DeriveName resolves the display name for a message: an explicit name field
// wins, then a leading "Name: " pattern in the text, then the role default.
// System messages carry no display name.
func DeriveName(explicit, text, role string) string {
	if role == "system" {
		return ""
	}
	if explicit != "" {
		return explicit
	}
	if m := namePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if role == "assistant" {
		return DefaultCharacterName
	}
	return DefaultUserName
}

// PrefixName prepends "Name: " to text unless a name pattern is already
// present in-line.
func PrefixName(name, text string) string {
	if name == "" || namePattern.MatchString(text) {
		return text
	}
	return name + ": " + text
}

// MergeConsecutive collapses runs of same-role messages into one, joining
// their text with a blank line. Multimodal parts are preserved in order.
func MergeConsecutive(messages []domain.Message) []domain.Message {
	var merged []domain.Message
	for _, msg := range messages {
		if len(merged) == 0 || merged[len(merged)-1].Role != msg.Role {
			merged = append(merged, msg)
			continue
		}
		last := &merged[len(merged)-1]
		last.Content = joinContent(last.Content, msg.Content)
	}
	return merged
}

func joinContent(a, b domain.MessageContent) domain.MessageContent {
	if a.IsSimpleText() && b.IsSimpleText() {
		return domain.NewTextContent(a.Text + "\n\n" + b.Text)
	}

	// At least one side is multimodal; merge part lists, joining adjacent
	// text parts across the boundary.
	parts := append([]domain.ContentPart{}, contentParts(a)...)
	for _, part := range contentParts(b) {
		if part.Type == domain.ContentTypeText && len(parts) > 0 && parts[len(parts)-1].Type == domain.ContentTypeText {
			parts[len(parts)-1].Text += "\n\n" + part.Text
			continue
		}
		parts = append(parts, part)
	}
	return domain.NewMultipartContent(parts...)
}

func contentParts(mc domain.MessageContent) []domain.ContentPart {
	if mc.IsSimpleText() {
		if mc.Text == "" {
			return nil
		}
		return []domain.ContentPart{domain.TextPart(mc.Text)}
	}
	return mc.Parts
}

// StopSequences appends a stop sequence for every distinct display name to
// the caller-supplied list, formatted as a newline followed by the name and
// a colon. The result is deduplicated and capped at MaxStopSequences
// synthesized entries.
func StopSequences(callerStops []string, names []string) []string {
	stops := append([]string{}, callerStops...)
	seen := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		seen[s] = struct{}{}
	}

	added := 0
	for _, name := range names {
		if name == "" || added >= MaxStopSequences {
			continue
		}
		stop := "\n" + name + ":"
		if _, dup := seen[stop]; dup {
			continue
		}
		seen[stop] = struct{}{}
		stops = append(stops, stop)
		added++
	}
	return stops
}
