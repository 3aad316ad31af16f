package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/joescharf/ait/internal/classify"
	"github.com/joescharf/ait/internal/models"
)

// Client wraps the Anthropic API for issue classification and extraction.
type Client struct {
	api   *anthropic.Client
	model anthropic.Model
}

// NewClient creates an LLM client with the given API key and model.
func NewClient(apiKey, model string) *Client {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	return &Client{
		api:   &client,
		model: anthropic.Model(model),
	}
}

// buildClassifyPrompt constructs the system and user prompts for classification.
func buildClassifyPrompt(title, description string) (system string, user string) {
	system = `You classify issues for an issue tracker used by AI coding agents. Return ONLY a JSON object with one field:
- "classification": one of "bug", "improvement", "feature"

Rules:
- "bug": something is broken, crashes, errors, or behaves incorrectly
- "improvement": existing behavior works but should be better (performance, refactoring, cleanup, usability)
- "feature": a new capability that does not exist yet
- Return valid JSON only, no markdown fencing or explanation`

	var sb strings.Builder
	sb.WriteString("Issue title: ")
	sb.WriteString(title)
	sb.WriteString("\n")
	if description != "" {
		sb.WriteString("\nDescription:\n")
		sb.WriteString(description)
		sb.WriteString("\n")
	}
	user = sb.String()
	return
}

// Suggest asks the LLM for a classification. It implements classify.Suggester.
func (c *Client) Suggest(ctx context.Context, title, description string) (models.Classification, error) {
	systemPrompt, userPrompt := buildClassifyPrompt(title, description)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 256)
	if err != nil {
		return "", err
	}
	return parseClassification(text)
}

func parseClassification(text string) (models.Classification, error) {
	var resp struct {
		Classification string `json:"classification"`
	}
	if err := json.Unmarshal([]byte(stripFence(text)), &resp); err != nil {
		return "", fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}
	return models.ParseClassification(strings.ToLower(strings.TrimSpace(resp.Classification)))
}

// buildExtractPrompt constructs the system and user prompts for issue extraction.
func buildExtractPrompt(content string) (system string, user string) {
	system = `You extract structured issues from markdown content. Return ONLY a JSON array of objects with these fields:
- "title": concise issue title
- "description": brief description of the issue, including any sub-bullets or details that belong to it (can be empty string if the title is self-explanatory)
- "classification": one of "bug", "improvement", "feature"

Rules:
- Each numbered/bulleted item is one issue
- Infer classification from context (problems = bug, changes to existing behavior = improvement, new capabilities = feature)
- For sub-issues (e.g., "1.1 Sub-task"), include the parent issue's text at the start of the description
- Never create placeholder issues like "no issues specified" or "N/A"
- Return valid JSON only, no markdown fencing or explanation`

	user = "Extract issues from this markdown:\n\n" + content
	return
}

// ExtractIssues sends markdown content to the LLM and returns issue drafts.
func (c *Client) ExtractIssues(ctx context.Context, content string) ([]classify.Draft, error) {
	systemPrompt, userPrompt := buildExtractPrompt(content)

	text, err := c.complete(ctx, systemPrompt, userPrompt, 4096)
	if err != nil {
		return nil, err
	}
	return parseDrafts(text)
}

func parseDrafts(text string) ([]classify.Draft, error) {
	var drafts []classify.Draft
	if err := json.Unmarshal([]byte(stripFence(text)), &drafts); err != nil {
		return nil, fmt.Errorf("parse LLM response as JSON: %w\nraw response: %s", err, text)
	}

	out := drafts[:0]
	for _, d := range drafts {
		d.Title = strings.TrimSpace(d.Title)
		if d.Title == "" {
			continue
		}
		d.Classification = strings.ToLower(strings.TrimSpace(d.Classification))
		if !models.Classification(d.Classification).Valid() {
			d.Classification = string(classify.Keywords(d.Title, d.Description))
		}
		out = append(out, d)
	}
	return out, nil
}

// complete sends one user message and returns the first text block.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in API response")
}

// stripFence removes a surrounding markdown code fence, if present.
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		lines := strings.SplitN(text, "\n", 2)
		if len(lines) > 1 {
			text = lines[1]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
