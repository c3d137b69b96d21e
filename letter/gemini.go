package letter

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.0-flash"

const systemInstruction = `You write credit report dispute letters on behalf of consumers.
Write plain text only. Do not invent facts beyond the details provided.
Address the letter to the named bureau and cite the Fair Credit Reporting Act where relevant.`

// contentGenerator is the subset of *genai.Models the generator uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator words letters with a Gemini model. The deterministic
// template is used as the factual outline in the prompt.
type GeminiGenerator struct {
	models  contentGenerator
	model   string
	outline *TemplateGenerator
}

// NewGeminiGenerator creates a client for apiKey. model defaults to
// DefaultGeminiModel.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("letter: create gemini client: %w", err)
	}
	return newGeminiGenerator(client.Models, model), nil
}

func newGeminiGenerator(models contentGenerator, model string) *GeminiGenerator {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{models: models, model: model, outline: NewTemplateGenerator()}
}

func (g *GeminiGenerator) Generate(ctx context.Context, req Request) (Draft, error) {
	outline, err := g.outline.Generate(ctx, req)
	if err != nil {
		return Draft{}, err
	}

	prompt := fmt.Sprintf(
		"Rewrite the following round %d dispute letter so it reads naturally and firmly. Keep every fact, address and legal reference.\n\n%s",
		req.Round, outline.Body)

	temperature := float32(0.3)
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:       &temperature,
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	})
	if err != nil {
		return Draft{}, fmt.Errorf("letter: gemini generate: %w", err)
	}
	if resp == nil {
		return Draft{}, ErrEmptyDraft
	}
	body := strings.TrimSpace(resp.Text())
	if body == "" {
		return Draft{}, ErrEmptyDraft
	}
	return Draft{Body: body, Model: g.model}, nil
}
