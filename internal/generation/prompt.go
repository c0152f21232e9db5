package generation

import (
	"fmt"
	"strings"
	"time"

	"notra/internal/trigger"
)

// BuildChangelogInstruction assembles the natural-language instruction for a
// changelog run: the repositories in scope, the resolved date range, and a
// "today" anchor so the model dates the document correctly.
func BuildChangelogInstruction(repos []string, r trigger.Range, today time.Time) string {
	var b strings.Builder

	b.WriteString("Write a customer-facing changelog covering development activity ")
	fmt.Fprintf(&b, "for the %s, from %s to %s.\n",
		r.Label,
		r.Start.UTC().Format(time.RFC3339),
		r.End.UTC().Format(time.RFC3339),
	)
	fmt.Fprintf(&b, "Today is %s.\n", today.UTC().Format("Monday, January 2, 2006"))

	if len(repos) > 0 {
		b.WriteString("Repositories in scope:\n")
		for _, repo := range repos {
			fmt.Fprintf(&b, "- %s\n", repo)
		}
	}

	b.WriteString("Start with a single H1 title line, then group changes under " +
		"Added / Changed / Fixed headings. Keep entries short and written for end users.")
	return b.String()
}

// systemPrompt renders the brand context into the system message.
func systemPrompt(brand BrandSettings) string {
	var b strings.Builder
	b.WriteString("You are a product marketing writer turning software-team activity into polished release content.\n")

	if brand.CompanyName != "" {
		fmt.Fprintf(&b, "Company: %s\n", brand.CompanyName)
	}
	if brand.CompanyDescription != "" {
		fmt.Fprintf(&b, "About the company: %s\n", brand.CompanyDescription)
	}
	if brand.Audience != "" {
		fmt.Fprintf(&b, "Audience: %s\n", brand.Audience)
	}
	tone := brand.Tone
	if tone == "" {
		tone = "professional"
	}
	fmt.Fprintf(&b, "Tone: %s\n", tone)
	if brand.CustomInstructions != "" {
		fmt.Fprintf(&b, "Additional instructions: %s\n", brand.CustomInstructions)
	}

	b.WriteString("Respond with markdown only.")
	return b.String()
}
