package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// LLM is the text collaborator the processing core calls. Implementations are
// best-effort: a method never fails, it returns a fallback value instead so a
// bad completion can never abort a chunk.
type LLM interface {
	// TransformText rewrites text according to instruction. On failure the
	// original text is returned unchanged.
	TransformText(ctx context.Context, text, instruction string) string

	// GenerateBatch produces one value per record, positionally. The result
	// always has len(records) entries; failed entries are empty strings.
	GenerateBatch(ctx context.Context, records []map[string]string, prompt string) []string

	// FilterMatches reports, per text, whether it matches the description.
	// On failure every text is treated as matching so no rows are lost.
	FilterMatches(ctx context.Context, texts []string, description string) []bool
}

const completionTimeout = 50 * time.Second

type OpenAI struct {
	client openai.Client
	model  string
	temp   float64
}

func NewOpenAI(model string, temp float64) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(),
		model:  model,
		temp:   temp,
	}
}

func (o *OpenAI) complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if len(systemPrompt) > 0 {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	messages = append(messages, openai.UserMessage(prompt))

	chatOpts := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       o.model,
		Temperature: openai.Float(o.temp),
	}

	res, err := o.client.Chat.Completions.New(ctx, chatOpts)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("openai completion returned no choices")
	}

	return res.Choices[0].Message.Content, nil
}

func (o *OpenAI) TransformText(ctx context.Context, text, instruction string) string {
	prompt, err := renderTransformPrompt(text, instruction)
	if err != nil {
		slog.Error("error rendering transform prompt", "error", err)
		return text
	}

	out, err := o.complete(ctx, transformSystemPrompt, prompt)
	if err != nil {
		slog.Warn("transform completion failed, keeping original value", "error", err)
		return text
	}
	return strings.TrimSpace(out)
}

func (o *OpenAI) GenerateBatch(ctx context.Context, records []map[string]string, prompt string) []string {
	values := make([]string, len(records))
	if len(records) == 0 {
		return values
	}

	rendered, err := renderGeneratePrompt(records, prompt)
	if err != nil {
		slog.Error("error rendering generation prompt", "error", err)
		return values
	}

	out, err := o.complete(ctx, generateSystemPrompt, rendered)
	if err != nil {
		slog.Warn("batch generation failed, returning empty values", "count", len(records), "error", err)
		return values
	}

	lines := splitNonEmptyLines(out)
	if len(lines) != len(records) {
		slog.Warn("batch generation returned unexpected line count", "expected", len(records), "got", len(lines))
	}
	for i := range values {
		if i < len(lines) {
			values[i] = lines[i]
		}
	}
	return values
}

func (o *OpenAI) FilterMatches(ctx context.Context, texts []string, description string) []bool {
	matches := allMatching(len(texts))
	if len(texts) == 0 || description == "" {
		return matches
	}

	rendered, err := renderFilterPrompt(texts, description)
	if err != nil {
		slog.Error("error rendering filter prompt", "error", err)
		return matches
	}

	out, err := o.complete(ctx, filterSystemPrompt, rendered)
	if err != nil {
		slog.Warn("filter completion failed, keeping all rows", "error", err)
		return matches
	}

	parsed, err := parseBoolArray(out, len(texts))
	if err != nil {
		slog.Warn("could not parse filter response, keeping all rows", "error", err)
		return matches
	}
	return parsed
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func allMatching(n int) []bool {
	matches := make([]bool, n)
	for i := range matches {
		matches[i] = true
	}
	return matches
}

// parseBoolArray extracts a JSON boolean array of length n from a completion,
// tolerating surrounding prose or markdown fences.
func parseBoolArray(s string, n int) ([]bool, error) {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no array found in response")
	}

	var parsed []bool
	if err := json.Unmarshal([]byte(s[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("error parsing boolean array: %w", err)
	}
	if len(parsed) != n {
		return nil, fmt.Errorf("expected %d entries, got %d", n, len(parsed))
	}
	return parsed, nil
}
