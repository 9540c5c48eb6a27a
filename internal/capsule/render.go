package capsule

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdownRenderer = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders a capsule as a standalone markdown document.
func Markdown(c *Capsule) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", escapeLine(c.Title))
	fmt.Fprintf(&b, "Grade **%s** (%s) · quality %.1f · confidence %.2f · version %d · %s · %s\n\n",
		c.Grade, c.Grade.Level(), c.QualityScore, c.Confidence, c.Version, c.Category, c.Status)

	if c.Summary != "" {
		fmt.Fprintf(&b, "## Summary\n\n%s\n\n", c.Summary)
	}
	fmt.Fprintf(&b, "## Insight\n\n%s\n\n", c.Insight)

	writeList(&b, "Evidence", c.Evidence)
	writeList(&b, "Action items", c.ActionItems)
	writeList(&b, "Open questions", c.Questions)

	b.WriteString("## Dimensions\n\n")
	b.WriteString("| Truth | Goodness | Beauty | Intelligence | Total |\n")
	b.WriteString("|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %.2f |\n\n",
		c.Dimensions.Truth, c.Dimensions.Goodness, c.Dimensions.Beauty, c.Dimensions.Intelligence, c.Dimensions.Total())

	if len(c.SourceAgents) > 0 {
		fmt.Fprintf(&b, "Contributors: %s\n\n", strings.Join(c.SourceAgents, ", "))
	}
	if len(c.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(c.Keywords, ", "))
	}

	return b.String()
}

// HTML renders the markdown form of a capsule to HTML with goldmark.
// Raw HTML in contribution text is not passed through.
func HTML(c *Capsule) (string, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(Markdown(c)), &buf); err != nil {
		return "", fmt.Errorf("render capsule html: %w", err)
	}
	return buf.String(), nil
}

func writeList(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", escapeLine(item))
	}
	b.WriteString("\n")
}

// escapeLine keeps a value on one line so it cannot open a new block.
func escapeLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
