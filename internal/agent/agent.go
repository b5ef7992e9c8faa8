// Package agent asks an LLM for a second opinion on generated candidates
// before a curator reviews them.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"term-forge/internal/generation"
)

// DefaultModel is the Gemini model used for reviews.
const DefaultModel = "gemini-2.5-flash"

// Verdicts a review can carry.
const (
	VerdictAccept = "accept"
	VerdictRevise = "revise"
	VerdictReject = "reject"
)

// Review is a reviewer's hint for one candidate. It never changes the
// candidate.
type Review struct {
	Verdict string `json:"verdict"`
	Notes   string `json:"notes"`
}

// Reviewer produces review hints.
type Reviewer interface {
	Review(ctx context.Context, out generation.Output) (*Review, error)
}

// Agent wraps the Gemini client and model used for reviews.
type Agent struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

const systemPrompt = `You are an experienced Gene Ontology curator reviewing a term proposed by a template-based term generator.
Check that the label follows GO naming conventions, that the definition is in genus-differentia form and matches the label, and that the logical definition and parents are consistent with the label.

Respond ONLY with a single JSON object and no other text:
{"verdict": "accept" | "revise" | "reject", "notes": "<one or two sentences>"}

Use "reject" when the term duplicates an existing class, "revise" when wording or placement should change, "accept" otherwise.`

// NewAgent initializes the Gemini client. If the API key is empty the caller
// receives a nil Agent and no error, so reviews are simply skipped.
func NewAgent(ctx context.Context, apiKey string, logger *slog.Logger) (*Agent, error) {
	if apiKey == "" {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := client.GenerativeModel(DefaultModel)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0)

	return &Agent{client: client, model: model, logger: logger}, nil
}

// Close releases underlying resources.
func (a *Agent) Close() {
	if a == nil || a.client == nil {
		return
	}
	if err := a.client.Close(); err != nil {
		a.logger.Warn("failed to close Gemini client", "error", err)
	}
}

// Review implements Reviewer.
func (a *Agent) Review(ctx context.Context, out generation.Output) (*Review, error) {
	if a == nil || a.model == nil {
		return nil, fmt.Errorf("ai agent is not initialized")
	}

	resp, err := a.model.GenerateContent(ctx, genai.Text(buildPrompt(out)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil ||
		resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("no response from agent")
	}

	part := resp.Candidates[0].Content.Parts[0]
	text, ok := part.(genai.Text)
	if !ok {
		return nil, fmt.Errorf("unexpected response type from agent: %T", part)
	}
	a.logger.Debug("review response", "template", out.Template, "label", out.Label, "response", string(text))
	return parseReview(string(text))
}

func buildPrompt(out generation.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\n", out.Template)
	fmt.Fprintf(&b, "Label: %s\n", out.Label)
	fmt.Fprintf(&b, "Definition: %s\n", out.Definition)
	if ld := out.LogicalDefinition(); ld != "" {
		fmt.Fprintf(&b, "Logical definition: %s\n", ld)
	}
	if len(out.Parents) > 0 {
		fmt.Fprintf(&b, "Parents: %s\n", strings.Join(out.Parents, ", "))
	}
	if len(out.Synonyms) > 0 {
		fmt.Fprintf(&b, "Synonyms: %s\n", strings.Join(out.Synonyms, "; "))
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(&b, "Generator warning: %s\n", w.Message)
	}
	return b.String()
}

// parseReview decodes the model's JSON answer, tolerating a markdown fence.
func parseReview(text string) (*Review, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	var r Review
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &r); err != nil {
		return nil, fmt.Errorf("failed to parse agent's JSON response: %w (response was: %s)", err, text)
	}
	switch r.Verdict {
	case VerdictAccept, VerdictRevise, VerdictReject:
		return &r, nil
	default:
		return nil, fmt.Errorf("agent returned unknown verdict %q", r.Verdict)
	}
}
