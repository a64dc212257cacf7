// Package synthetic generates placeholder responses at a requested quality
// tier for demonstrations and cold-start questions.
package synthetic

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziadkadry99/expertroute/internal/apperr"
	"github.com/ziadkadry99/expertroute/internal/llm"
	"github.com/ziadkadry99/expertroute/internal/questions"
)

// Request describes the question a synthetic response is generated for.
type Request struct {
	Title        string
	Body         string
	Tags         []string
	QualityLevel questions.QualityLevel
}

// Generator produces synthetic response text through an LLM provider.
type Generator struct {
	provider llm.Provider
	model    string
}

// NewGenerator creates a Generator.
func NewGenerator(provider llm.Provider, model string) *Generator {
	return &Generator{provider: provider, model: model}
}

// Generate returns response content for the request.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	const op = "synthetic.Generate"
	if !req.QualityLevel.Valid() {
		return "", apperr.Validation(op, "quality level %q is invalid", req.QualityLevel)
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
		return "", apperr.Validation(op, "question context is required")
	}

	tier := tiers[req.QualityLevel]
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		Model:       g.model,
		Messages:    buildMessages(req, tier),
		MaxTokens:   tier.maxTokens,
		Temperature: tier.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generating %s response: %w", req.QualityLevel, err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("generating %s response: empty completion", req.QualityLevel)
	}
	return content, nil
}

type tier struct {
	instruction string
	maxTokens   int
	temperature float64
}

var tiers = map[questions.QualityLevel]tier{
	questions.QualityLow: {
		instruction: "Write a brief, generic reply of two or three sentences. Do not go into specifics.",
		maxTokens:   150,
		temperature: 0.9,
	},
	questions.QualityMedium: {
		instruction: "Write a practical reply of one or two short paragraphs with at least one concrete suggestion.",
		maxTokens:   400,
		temperature: 0.6,
	},
	questions.QualityHigh: {
		instruction: "Write a thorough reply as a seasoned practitioner would: concrete steps, the trade-offs involved, and pitfalls to avoid.",
		maxTokens:   900,
		temperature: 0.3,
	},
}

const systemPrompt = `You are drafting an example answer to a question asked on a peer-expertise network.
Answer in plain prose. Do not mention that you are an AI and do not add a preamble.`

func buildMessages(req Request, t tier) []llm.Message {
	var sb strings.Builder
	sb.WriteString(t.instruction)
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(strings.TrimSpace(req.Title))
	if body := strings.TrimSpace(req.Body); body != "" {
		sb.WriteString("\n\n")
		sb.WriteString(body)
	}
	if len(req.Tags) > 0 {
		sb.WriteString("\n\nTopics: ")
		sb.WriteString(strings.Join(req.Tags, ", "))
	}
	return llm.Prompt(systemPrompt, sb.String())
}
