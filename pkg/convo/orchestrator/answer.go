package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"shopmate-be/pkg/llm"
	"shopmate-be/pkg/productsearch"
)

// LLMAnswerGenerator phrases answers with an LLM. Product answers never
// fail the turn: when the model misbehaves a deterministic summary is used
// instead. Memory answers have nothing to template from, so those do
// return an error and let the caller fall back.
type LLMAnswerGenerator struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

func NewLLMAnswerGenerator(provider llm.LLMProvider, logger *log.Logger) *LLMAnswerGenerator {
	return &LLMAnswerGenerator{provider: provider, logger: logger}
}

func (g *LLMAnswerGenerator) FromProducts(ctx context.Context, query string, products []productsearch.Product) *Answer {
	if len(products) == 0 {
		return &Answer{
			Summary:      "I couldn't find anything matching that. Want to loosen one of your requirements?",
			QuickReplies: []string{"Remove the budget limit", "Try a different brand"},
		}
	}

	prompt := g.buildProductPrompt(query, products)
	raw, err := g.provider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	if err != nil {
		g.logger.Printf("[ANSWER] LLM failed, using templated summary: %v", err)
		return summarizeProducts(query, products)
	}

	answer, err := parseAnswer(raw)
	if err != nil {
		g.logger.Printf("[ANSWER] Unparseable answer, using templated summary: %v", err)
		return summarizeProducts(query, products)
	}
	answer.ProductIDs = reconcileIDs(answer.ProductIDs, products)
	return answer
}

func (g *LLMAnswerGenerator) FromMemory(ctx context.Context, query, memoryBlock string) (*Answer, error) {
	prompt := g.buildMemoryPrompt(query, memoryBlock)
	raw, err := g.provider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("answer: memory generation: %w", err)
	}
	answer, err := parseAnswer(raw)
	if err != nil {
		return nil, fmt.Errorf("answer: parse memory answer: %w", err)
	}
	return answer, nil
}

func (g *LLMAnswerGenerator) buildProductPrompt(query string, products []productsearch.Product) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You are a shopping assistant. Present the search results below as a short, friendly recommendation.\n")
	sb.WriteString("Mention at most 3 products by name. Keep it under 3 sentences. Do not invent products.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString("<user_query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</user_query>\n\n")

	sb.WriteString("<search_results>\n")
	for _, p := range products {
		sb.WriteString(fmt.Sprintf("- id: %s | name: %s | brand: %s | price_minor: %d | rating: %.1f\n",
			p.ID, p.Name, p.Brand, p.Price, p.Rating))
	}
	sb.WriteString("</search_results>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString("Respond with ONLY valid JSON:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"summary\": \"the recommendation text\",\n")
	sb.WriteString("  \"product_ids\": [\"ids of the results, best first\"],\n")
	sb.WriteString("  \"quick_replies\": [\"2-3 short follow-up suggestions the user might tap\"]\n")
	sb.WriteString("}\n")
	sb.WriteString("</output_format>")

	return sb.String()
}

func (g *LLMAnswerGenerator) buildMemoryPrompt(query, memoryBlock string) string {
	var sb strings.Builder

	sb.WriteString("<system>\n")
	sb.WriteString("You are a shopping assistant. Answer the user's question using ONLY the conversation memory below.\n")
	sb.WriteString("Do not invent products or facts that are not in the memory.\n")
	sb.WriteString("</system>\n\n")

	sb.WriteString(memoryBlock)
	sb.WriteString("\n\n<user_query>\n")
	sb.WriteString(query)
	sb.WriteString("\n</user_query>\n\n")

	sb.WriteString("<output_format>\n")
	sb.WriteString("Respond with ONLY valid JSON:\n")
	sb.WriteString("{\n")
	sb.WriteString("  \"summary\": \"the answer text\",\n")
	sb.WriteString("  \"product_ids\": [\"ids of products from memory the answer refers to\"],\n")
	sb.WriteString("  \"quick_replies\": [\"2-3 short follow-up suggestions\"]\n")
	sb.WriteString("}\n")
	sb.WriteString("</output_format>")

	return sb.String()
}

func parseAnswer(raw string) (*Answer, error) {
	jsonStr := extractJSON(raw)
	if jsonStr == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var answer Answer
	if err := json.Unmarshal([]byte(jsonStr), &answer); err != nil {
		return nil, fmt.Errorf("unmarshal answer: %w", err)
	}
	if strings.TrimSpace(answer.Summary) == "" {
		return nil, fmt.Errorf("empty summary")
	}
	return &answer, nil
}

func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// summarizeProducts is the deterministic fallback answer.
func summarizeProducts(query string, products []productsearch.Product) *Answer {
	names := make([]string, 0, 3)
	ids := make([]string, 0, len(products))
	for i, p := range products {
		ids = append(ids, p.ID)
		if i < 3 {
			names = append(names, p.Name)
		}
	}
	return &Answer{
		Summary:      fmt.Sprintf("Here's what I found for %q: %s.", query, strings.Join(names, ", ")),
		ProductIDs:   ids,
		QuickReplies: []string{"Show cheaper options", "More like these"},
	}
}

// reconcileIDs keeps the model's ordering but drops hallucinated ids and
// appends any result it omitted.
func reconcileIDs(proposed []string, products []productsearch.Product) []string {
	valid := make(map[string]bool, len(products))
	for _, p := range products {
		valid[p.ID] = true
	}
	out := make([]string, 0, len(products))
	seen := make(map[string]bool, len(products))
	for _, id := range proposed {
		if valid[id] && !seen[id] {
			out = append(out, id)
			seen[id] = true
		}
	}
	for _, p := range products {
		if !seen[p.ID] {
			out = append(out, p.ID)
			seen[p.ID] = true
		}
	}
	return out
}
