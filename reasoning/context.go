package reasoning

import (
	"fmt"
	"strings"

	"github.com/sherlockai/sherlock/retrieval"
)

const blockSeparator = "\n---\n"

const maxSourceTitleLen = 60

// BuildContext assembles the evidence text handed to the generator: one
// block per incident in retrieval order, separated by a rule.
func BuildContext(results []retrieval.Result) string {
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, incidentBlock(r))
	}
	return strings.Join(blocks, blockSeparator)
}

func incidentBlock(r retrieval.Result) string {
	var b strings.Builder
	inc := r.Incident

	fmt.Fprintf(&b, "Incident ID: %s\n", inc.ID)
	fmt.Fprintf(&b, "Title: %s\n", inc.Title)
	if inc.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", inc.Description)
	}
	if inc.Resolution != "" {
		fmt.Fprintf(&b, "Resolution: %s\n", inc.Resolution)
	}
	if len(inc.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(inc.Tags, ", "))
	}
	fmt.Fprintf(&b, "Similarity: %.3f\n", r.FusedScore)
	if len(inc.ErrorPatterns) > 0 {
		b.WriteString("Error Patterns:\n")
		for _, ep := range inc.ErrorPatterns {
			fmt.Fprintf(&b, "  - %s: %s\n", ep.Code, ep.Message)
		}
	}
	if len(r.Methods) > 0 {
		fmt.Fprintf(&b, "Search Methods: %s\n", strings.Join(r.Methods, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Sources renders the citation list parallel to the results: same length,
// same order, each entry "[<id>] <title> (Score: x.xxx)".
func Sources(results []retrieval.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		title := r.Incident.Title
		if len(title) > maxSourceTitleLen {
			title = title[:maxSourceTitleLen]
		}
		out = append(out, fmt.Sprintf("[%s] %s (Score: %.3f)", r.Incident.ID, title, r.FusedScore))
	}
	return out
}
