package enrichment

import (
	"strings"

	"listing_enricher/internal/models"
)

const basePrompt = `Analyze these images of an item for sale. Provide:
1. Item title (max 80 characters)
2. Detailed description (2-3 paragraphs)
3. Estimated condition (New, Very Good, Good, Fair, Poor)
4. Suggested category
5. Brand name (if identifiable)
6. Material (if identifiable)
7. Color description
8. Country of origin (if identifiable)
9. Estimated market value range
10. Key selling points (a list)

Respond with a single JSON object and nothing else.`

// BuildPrompt returns the instruction sent with every enrichment call. It
// names exactly the canonical result keys and appends the user's note.
func BuildPrompt(note string) string {
	var b strings.Builder
	b.WriteString(basePrompt)
	b.WriteString("\nUse these exact keys: ")
	b.WriteString(strings.Join(models.CanonicalFields, ", "))
	b.WriteString(".")

	if note = strings.TrimSpace(note); note != "" {
		b.WriteString("\n\nSeller note: ")
		b.WriteString(note)
	}
	return b.String()
}
