package repair

import (
	"regexp"
	"strings"
)

var (
	blockSplit     = regexp.MustCompile(`\n{2,}`)
	chatterPrefix  = regexp.MustCompile(`(?i)(?:\bto=[^\s]+(?:\s+commentary)?(?:\s+[^\s]{1,30})?\s*){2,}`)
	whitespaceRuns = regexp.MustCompile(`\s{2,}`)
)

// SanitizeToolChatter strips malformed tool-call chatter from assistant text
// while preserving the final user-facing answer. Content that never mentions
// a configured tool alongside a "to=" routing token passes through untouched,
// so the sanitizer is idempotent.
func SanitizeToolChatter(content string, actionTools []string) string {
	if strings.TrimSpace(content) == "" {
		return content
	}

	lowered := strings.ToLower(content)
	toolMentions := make([]string, 0, len(actionTools))
	for _, id := range actionTools {
		toolMentions = append(toolMentions, strings.ToLower(id))
	}

	mentionsTool := func(s string) bool {
		for _, tool := range toolMentions {
			if strings.Contains(s, tool) {
				return true
			}
		}
		return false
	}

	if !strings.Contains(lowered, "to=") || !mentionsTool(lowered) {
		return content
	}

	// Prefer the last paragraph that is not chatter.
	var blocks []string
	for _, block := range blockSplit.Split(content, -1) {
		if b := strings.TrimSpace(block); b != "" {
			blocks = append(blocks, b)
		}
	}
	if len(blocks) > 1 {
		for i := len(blocks) - 1; i >= 0; i-- {
			blockLower := strings.ToLower(blocks[i])
			if strings.Contains(blockLower, "to=") && mentionsTool(blockLower) {
				continue
			}
			if strings.Contains(blockLower, "need proper json") ||
				strings.Contains(blockLower, "commentary") {
				continue
			}
			return blocks[i]
		}
	}

	cleaned := chatterPrefix.ReplaceAllString(content, "")
	cleaned = strings.TrimSpace(whitespaceRuns.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return content
	}
	return cleaned
}
