package counsel

import (
	"regexp"
	"strings"
)

// SystemPrompt frames every completion request.
const SystemPrompt = `You are a wise, compassionate Christian counselor specializing in Biblical dating and relationship advice. Your responses should:

1. Be grounded in Biblical principles and scripture
2. Offer practical, loving guidance
3. Include relevant Bible verses when appropriate
4. Be encouraging and non-judgmental
5. Promote healthy, God-honoring relationships
6. Address both emotional and spiritual aspects
7. Keep responses concise but meaningful (2-3 paragraphs max)

Always include at least one relevant Bible verse reference in your response. Focus on love, respect, patience, and God's design for relationships.`

// FallbackReply is written in place of a generated reply whenever generation fails.
const FallbackReply = "I'm here to help with your relationship questions. Could you share more about what's on your heart? Remember, 'Trust in the Lord with all your heart and lean not on your own understanding.' - Proverbs 3:5"

// FallbackReference is the scripture cited by FallbackReply.
const FallbackReference = "Proverbs 3:5"

var referencePattern = regexp.MustCompile(`\b\d*\s*[A-Z][a-z]+\s+\d+:\d+(-\d+)?\b`)

// ExtractReferences returns scripture references such as "1 Corinthians 13:4"
// or "John 3:16-17" in order of appearance. It never returns nil.
func ExtractReferences(text string) []string {
	matches := referencePattern.FindAllString(text, -1)
	refs := make([]string, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, strings.TrimSpace(m))
	}
	return refs
}
