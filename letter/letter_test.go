package letter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"

	"scorevera/tradeline"
)

func sampleRequest(round int) Request {
	amount := int64(45050)
	return Request{
		DisputeID:   "d-1",
		TradelineID: "t-1",
		Creditor:    "Midland Credit",
		ItemType:    tradeline.ItemCollection,
		Bureau:      tradeline.BureauExperian,
		Round:       round,
		ReportedOn:  time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		AmountCents: &amount,
		Today:       time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestTemplateGenerator_RoundWording(t *testing.T) {
	gen := NewTemplateGenerator()

	first, err := gen.Generate(context.Background(), sampleRequest(1))
	if err != nil {
		t.Fatalf("round 1: %v", err)
	}
	for _, want := range []string{"Experian", "Allen, TX 75013", "Midland Credit", "collection account", "$450.50", "section 611 "} {
		if !strings.Contains(first.Body, want) {
			t.Fatalf("round 1 letter missing %q:\n%s", want, first.Body)
		}
	}
	if first.Model != templateModel {
		t.Fatalf("expected model %q, got %q", templateModel, first.Model)
	}

	second, err := gen.Generate(context.Background(), sampleRequest(2))
	if err != nil {
		t.Fatalf("round 2: %v", err)
	}
	if !strings.Contains(second.Body, "611(a)(7)") {
		t.Fatalf("round 2 letter should request method of verification:\n%s", second.Body)
	}

	third, err := gen.Generate(context.Background(), sampleRequest(3))
	if err != nil {
		t.Fatalf("round 3: %v", err)
	}
	if !strings.Contains(third.Body, "Consumer Financial Protection Bureau") {
		t.Fatalf("round 3 letter should escalate:\n%s", third.Body)
	}
}

func TestTemplateGenerator_Deterministic(t *testing.T) {
	gen := NewTemplateGenerator()
	a, _ := gen.Generate(context.Background(), sampleRequest(1))
	b, _ := gen.Generate(context.Background(), sampleRequest(1))
	if a.Body != b.Body {
		t.Fatalf("expected identical output for identical requests")
	}
}

func TestTemplateGenerator_RejectsUnknownBureau(t *testing.T) {
	req := sampleRequest(1)
	req.Bureau = "innovis"
	if _, err := NewTemplateGenerator().Generate(context.Background(), req); err == nil {
		t.Fatal("expected error for unknown bureau")
	}
}

type fakeModels struct {
	gotModel  string
	gotPrompt string
	resp      *genai.GenerateContentResponse
	err       error
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.gotModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.gotPrompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func TestGeminiGenerator_UsesOutlineAndModel(t *testing.T) {
	models := &fakeModels{resp: textResponse("  Dear Experian, please delete this item.  ")}
	gen := newGeminiGenerator(models, "")

	draft, err := gen.Generate(context.Background(), sampleRequest(2))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if models.gotModel != DefaultGeminiModel {
		t.Fatalf("expected default model, got %q", models.gotModel)
	}
	if !strings.Contains(models.gotPrompt, "Midland Credit") || !strings.Contains(models.gotPrompt, "round 2") {
		t.Fatalf("prompt missing outline facts: %s", models.gotPrompt)
	}
	if draft.Body != "Dear Experian, please delete this item." {
		t.Fatalf("unexpected body %q", draft.Body)
	}
	if draft.Model != DefaultGeminiModel {
		t.Fatalf("expected model recorded on draft, got %q", draft.Model)
	}
}

func TestGeminiGenerator_EmptyResponse(t *testing.T) {
	gen := newGeminiGenerator(&fakeModels{resp: textResponse("   ")}, "gemini-test")
	if _, err := gen.Generate(context.Background(), sampleRequest(1)); !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
}

func TestGeminiGenerator_PropagatesErrors(t *testing.T) {
	boom := errors.New("quota exceeded")
	gen := newGeminiGenerator(&fakeModels{err: boom}, "gemini-test")
	if _, err := gen.Generate(context.Background(), sampleRequest(1)); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
