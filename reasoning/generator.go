package reasoning

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sherlockai/sherlock/classify"
	"github.com/sherlockai/sherlock/corpus"
	"github.com/sherlockai/sherlock/llm"
	"github.com/sherlockai/sherlock/retrieval"
)

// Generation caps per template. Exact-ID answers are short summaries;
// complex analyses get the most room.
const (
	exactIDMaxTokens = 100
	simpleMaxTokens  = 200
	complexMaxTokens = 400

	exactIDTemperature = 0.1
	answerTemperature  = 0.3

	fallbackResolutionLen = 100
)

const exactIDPrompt = `You are a payment-incident assistant. Summarize the following incident in 1-2 sentences.
Use ONLY the information below. Do not add anything that is not in the incident.

%s

Summary:`

const simplePrompt = `You are a payment-incident assistant. Using ONLY the past incidents below, suggest a fix for the user's issue in one sentence.
Start your answer with exactly "Fix Suggestion: ". If the incidents do not contain a fix, say so - do not invent one.

Past incidents:
%s

User issue: %s

Answer:`

const complexPrompt = `You are a payment-incident assistant. Using ONLY the past incidents below, produce a structured answer with three sections:

Analysis: root-cause patterns across the incidents.
Resolution: step-by-step fix based on what actually resolved them.
Prevention: how to avoid recurrence.

Ground every statement in the incidents - do not invent causes, fixes, or incidents that are not listed.

Past incidents:
%s

User question: %s

Answer:`

// Generator composes grounded answers via the chat model, with
// deterministic fallbacks when the model fails.
type Generator struct {
	provider llm.Provider
	model    string
}

// NewGenerator creates a generator using the given chat model.
func NewGenerator(provider llm.Provider, model string) *Generator {
	return &Generator{provider: provider, model: model}
}

// SummarizeIncident produces the exact-ID answer: a 1-2 sentence summary
// of one incident. Chat failure falls back to a deterministic rendering
// of the record.
func (g *Generator) SummarizeIncident(ctx context.Context, inc corpus.Incident) string {
	prompt := fmt.Sprintf(exactIDPrompt, incidentBlock(retrieval.Result{Incident: inc}))
	answer, err := g.chat(ctx, prompt, exactIDTemperature, exactIDMaxTokens)
	if err != nil {
		slog.Warn("reasoning: exact-id summary failed, using record rendering",
			"id", inc.ID, "error", err)
		return FormatIncident(inc)
	}
	return answer
}

// Generate composes the answer for a retrieval-backed query. The template
// follows the complexity label; chat failure falls back to a deterministic
// string built from the top candidate.
func (g *Generator) Generate(ctx context.Context, query string, complexity classify.Complexity, results []retrieval.Result) string {
	evidence := BuildContext(results)

	var prompt string
	var maxTokens int
	switch complexity {
	case classify.Complex:
		prompt = fmt.Sprintf(complexPrompt, evidence, query)
		maxTokens = complexMaxTokens
	default:
		prompt = fmt.Sprintf(simplePrompt, evidence, query)
		maxTokens = simpleMaxTokens
	}

	answer, err := g.chat(ctx, prompt, answerTemperature, maxTokens)
	if err != nil {
		slog.Warn("reasoning: generation failed, using deterministic fallback", "error", err)
		return Fallback(results)
	}
	return answer
}

func (g *Generator) chat(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := g.provider.Chat(ctx, llm.ChatRequest{
		Model:       g.model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", fmt.Errorf("empty completion")
	}
	return answer, nil
}

// Fallback builds the deterministic answer used when the chat model is
// unavailable: the top candidate's id and the head of its resolution.
func Fallback(results []retrieval.Result) string {
	if len(results) == 0 {
		return "No relevant incidents were found for this query."
	}
	top := results[0].Incident
	resolution := top.Resolution
	if len(resolution) > fallbackResolutionLen {
		resolution = resolution[:fallbackResolutionLen]
	}
	if resolution == "" {
		return fmt.Sprintf("Closest past incident: %s (%s).", top.ID, top.Title)
	}
	return fmt.Sprintf("Based on incident %s: %s", top.ID, resolution)
}

// FormatIncident renders one incident the way the exact-ID path presents
// it when no model is available.
func FormatIncident(inc corpus.Incident) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", inc.ID, inc.Title)
	if inc.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", inc.Description)
	}
	if inc.Resolution != "" {
		fmt.Fprintf(&b, "Resolution: %s\n", inc.Resolution)
	}
	if inc.ResolvedBy != "" {
		fmt.Fprintf(&b, "Resolved by: %s\n", inc.ResolvedBy)
	}
	if inc.CreatedAt != "" {
		fmt.Fprintf(&b, "Date: %s\n", inc.CreatedAt)
	}
	if len(inc.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(inc.Tags, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
