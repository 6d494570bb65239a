// Package corpus holds the in-process incident table that backs exact-ID
// lookup and the lexical indices. Incidents are immutable after ingestion;
// the only writer is Rebuild, which swaps the whole generation atomically.
package corpus

import "strings"

// ErrorPattern is a structured error signature attached to an incident.
type ErrorPattern struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Incident is the canonical historical incident record, the unit of
// retrieval. IDs are stored canonical upper-case.
type Incident struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Resolution    string         `json:"resolution"`
	Tags          []string       `json:"tags"`
	CreatedAt     string         `json:"created_at"`
	ResolvedBy    string         `json:"resolved_by"`
	ErrorPatterns []ErrorPattern `json:"error_patterns,omitempty"`
}

// SearchableText flattens an incident into the text the lexical indices
// rank against. Title counts three times and tags twice so keyword hits
// on them outweigh body hits; description, resolution and resolver follow.
func (inc Incident) SearchableText() string {
	var parts []string

	if inc.Title != "" {
		parts = append(parts, inc.Title, inc.Title, inc.Title)
	}
	if inc.Description != "" {
		parts = append(parts, inc.Description)
	}
	if inc.Resolution != "" {
		parts = append(parts, inc.Resolution)
	}
	if len(inc.Tags) > 0 {
		tagText := strings.Join(inc.Tags, " ")
		parts = append(parts, tagText, tagText)
	}
	if inc.ResolvedBy != "" {
		parts = append(parts, inc.ResolvedBy)
	}
	return strings.Join(parts, " ")
}

// EntityText is the portion of an incident the extractors look at when
// matching merchants, gateways and exact technical terms.
func (inc Incident) EntityText() string {
	return inc.Title + " " + inc.Description + " " + strings.Join(inc.Tags, " ")
}
