// Package insights turns monthly statistics into short narrative tips.
package insights

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"flow/internal/logger"
	"flow/internal/models"

	"google.golang.org/genai"
)

// Generator produces an ordered list of short insights for one month.
type Generator interface {
	Generate(ctx context.Context, stats models.MonthlyStats, month string) ([]string, error)
}

// FallbackInsights is returned when generation fails.
var FallbackInsights = []string{
	"Your highest expense category this month might need attention.",
	"Consider setting up a budget for better financial management.",
	"Track your recurring expenses to identify potential savings.",
}

// DefaultModelName is used when no model is configured.
const DefaultModelName = "gemini-1.5-flash"

type generateFunc func(ctx context.Context, prompt string) (string, error)

// GeminiGenerator asks a Gemini model for insights.
type GeminiGenerator struct {
	generate generateFunc
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if model == "" {
		model = DefaultModelName
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGenerator{
		generate: func(ctx context.Context, prompt string) (string, error) {
			resp, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
			if err != nil {
				return "", fmt.Errorf("generate content: %w", err)
			}
			return resp.Text(), nil
		},
	}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, stats models.MonthlyStats, month string) ([]string, error) {
	raw, err := g.generate(ctx, buildPrompt(stats, month))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty response from model")
	}

	var out []string
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &out); err != nil {
		return nil, fmt.Errorf("unmarshal insights: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("model returned no insights")
	}
	return out, nil
}

func buildPrompt(stats models.MonthlyStats, month string) string {
	var b strings.Builder
	b.WriteString("Analyze this financial data and provide 3 concise, actionable insights.\n")
	b.WriteString("Focus on spending patterns and practical advice. Keep it friendly and conversational.\n\n")
	fmt.Fprintf(&b, "Financial Data for %s:\n", month)
	fmt.Fprintf(&b, "- Total Income: %s\n", stats.TotalIncome.StringFixed(2))
	fmt.Fprintf(&b, "- Total Expenses: %s\n", stats.TotalExpenses.StringFixed(2))
	fmt.Fprintf(&b, "- Net Income: %s\n", stats.Net().StringFixed(2))

	cats := make([]string, 0, len(stats.ByCategory))
	for c := range stats.ByCategory {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	parts := make([]string, 0, len(cats))
	for _, c := range cats {
		parts = append(parts, fmt.Sprintf("%s: %s", c, stats.ByCategory[c].StringFixed(2)))
	}
	fmt.Fprintf(&b, "- Expense Categories: %s\n\n", strings.Join(parts, ", "))

	b.WriteString("Return ONLY a JSON array of strings, like this:\n")
	b.WriteString(`["insight 1", "insight 2", "insight 3"]`)
	b.WriteString("\nDo NOT wrap the response in code fences.\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding text from a model
// response, keeping the outermost JSON array.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

type fallback struct {
	next Generator
}

// WithFallback wraps g so that any failure, or a nil g, yields
// FallbackInsights instead of an error.
func WithFallback(g Generator) Generator {
	return fallback{next: g}
}

func (f fallback) Generate(ctx context.Context, stats models.MonthlyStats, month string) ([]string, error) {
	if f.next == nil {
		return fallbackCopy(), nil
	}
	out, err := f.next.Generate(ctx, stats, month)
	if err != nil {
		logger.Get().Warnw("Insight generation failed, using fallback", "month", month, "error", err)
		return fallbackCopy(), nil
	}
	return out, nil
}

func fallbackCopy() []string {
	return append([]string(nil), FallbackInsights...)
}
