package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/heartmarshall/docflow-backend/internal/adapter/gemini"
	"github.com/heartmarshall/docflow-backend/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRules_Classify(t *testing.T) {
	t.Parallel()

	r, err := NewRules(testLogger(), Config{})
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}

	tests := []struct {
		name         string
		in           Input
		wantCategory string
		wantMinConf  float64
		wantTags     []string
	}{
		{
			name: "invoice",
			in: Input{
				Title: "Invoice 2024-117",
				Text:  "Payment of the total amount is due in 30 days. Tax included. URGENT.",
			},
			wantCategory: "Invoice",
			wantMinConf:  0.8,
			wantTags:     []string{"urgent"},
		},
		{
			name: "contract with phrase tag",
			in: Input{
				Title: "Service agreement",
				Text:  "This contract sets the terms and conditions. Signature past due.",
			},
			wantCategory: "Contract",
			wantMinConf:  0.5,
			wantTags:     []string{"expired"},
		},
		{
			name:         "nothing matches",
			in:           Input{Text: "Lorem ipsum dolor sit amet."},
			wantCategory: "Other",
			wantMinConf:  0.1,
		},
		{
			name:         "substring does not count as keyword",
			in:           Input{Text: "The billboard was lawful."},
			wantCategory: "Other",
			wantMinConf:  0.1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := r.Classify(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if res.Category != tt.wantCategory {
				t.Errorf("category = %q, want %q", res.Category, tt.wantCategory)
			}
			if res.Confidence < tt.wantMinConf || res.Confidence > 1 {
				t.Errorf("confidence = %v, want within [%v,1]", res.Confidence, tt.wantMinConf)
			}
			for _, tag := range tt.wantTags {
				if !slices.Contains(res.Tags, tag) {
					t.Errorf("tags = %v, missing %q", res.Tags, tag)
				}
			}
		})
	}
}

func TestRules_ContentTooLarge(t *testing.T) {
	t.Parallel()

	r, err := NewRules(testLogger(), Config{MaxInputChars: 10})
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}
	_, err = r.Classify(context.Background(), Input{Text: strings.Repeat("ж", 11)})
	if !errors.Is(err, domain.ErrContentTooLarge) {
		t.Fatalf("err = %v, want ErrContentTooLarge", err)
	}
}

func TestRules_CustomFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	yaml := `
categories:
  - name: Recipe
    keywords: [flour, sugar, oven]
fallback:
  name: Misc
tags:
  sweet: [sugar, "icing sugar"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	r, err := NewRules(testLogger(), Config{RulesPath: path})
	if err != nil {
		t.Fatalf("NewRules: %v", err)
	}
	res, err := r.Classify(context.Background(), Input{Text: "Mix FLOUR and sugar. Preheat the oven."})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "Recipe" || res.Confidence != 1 {
		t.Errorf("got %q %.2f, want Recipe 1.00", res.Category, res.Confidence)
	}
	if !slices.Equal(res.Tags, []string{"sweet"}) {
		t.Errorf("tags = %v", res.Tags)
	}
	if got := r.rules.CategoryNames(); !slices.Equal(got, []string{"Recipe", "Misc"}) {
		t.Errorf("CategoryNames = %v", got)
	}
}

func TestParseRules_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{
		"{{{",
		"categories: []",
		"categories:\n  - name: X\n",
	} {
		if _, err := ParseRules([]byte(in)); err == nil {
			t.Errorf("ParseRules(%q) expected error", in)
		}
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	text := "Annual Report\n\nRevenue grew by ten percent this year. Costs stayed flat across regions!  " +
		"Hiring will continue next quarter? Nothing else to add."

	tests := []struct {
		n    int
		want string
	}{
		{0, ""},
		{1, "Revenue grew by ten percent this year."},
		{2, "Revenue grew by ten percent this year. Costs stayed flat across regions!"},
	}
	for _, tt := range tests {
		if got := Summarize(text, tt.n); got != tt.want {
			t.Errorf("Summarize(n=%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
	if got := Summarize("short text", 3); got != "short text" {
		t.Errorf("Summarize short = %q", got)
	}
}

func TestExtractEntities(t *testing.T) {
	t.Parallel()

	text := "Contact billing@acme.io or see https://acme.io/pay. Amount: $1,250.00 (or 900 EUR), " +
		"due 2024-03-15, signed March 1, 2024. Again billing@acme.io."

	got := ExtractEntities(text)

	want := map[string][]string{
		EntityEmail: {"billing@acme.io"},
		EntityURL:   {"https://acme.io/pay"},
		EntityMoney: {"$1,250.00", "900 EUR"},
		EntityDate:  {"2024-03-15", "March 1, 2024"},
	}
	for kind, values := range want {
		if !slices.Equal(got[kind], values) {
			t.Errorf("%s = %v, want %v", kind, got[kind], values)
		}
	}
	if len(ExtractEntities("nothing here")) != 0 {
		t.Error("expected no entities")
	}
}

type generatorStub struct {
	out string
	err error
	req gemini.Request
}

func (g *generatorStub) Generate(_ context.Context, req gemini.Request) (string, error) {
	g.req = req
	return g.out, g.err
}

func TestVertex_Classify(t *testing.T) {
	t.Parallel()

	gen := &generatorStub{out: "```json\n{\"category\":\"Financial\",\"confidence\":0.82,\"summary\":\"Q3 numbers.\"," +
		"\"entities\":{\"money\":[\"$5M\"]},\"tags\":[\"Quarterly\",\"quarterly\"]}\n```"}
	v := newVertex(testLogger(), Config{}, gen, []string{"Financial", "Legal"})

	res, err := v.Classify(context.Background(), Input{Title: "Q3", Text: "Revenue $5M"})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Category != "Financial" || res.Confidence != 0.82 {
		t.Errorf("got %q %v", res.Category, res.Confidence)
	}
	if !slices.Equal(res.Tags, []string{"quarterly"}) {
		t.Errorf("tags = %v", res.Tags)
	}
	if !gen.req.JSON {
		t.Error("request should use JSON mode")
	}
	if !strings.Contains(gen.req.System, `"Financial", "Legal"`) {
		t.Errorf("system prompt missing categories: %s", gen.req.System)
	}
}

func TestVertex_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		gen     *generatorStub
		wantErr error
	}{
		{"transport", &generatorStub{err: domain.ErrModelUnavailable}, domain.ErrModelUnavailable},
		{"refusal", &generatorStub{err: errors.Join(gemini.ErrRefused, domain.ErrModelUnavailable)}, gemini.ErrRefused},
		{"not json", &generatorStub{out: "sure, here you go"}, domain.ErrModelUnavailable},
		{"no category", &generatorStub{out: `{"confidence":0.9}`}, domain.ErrModelUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := newVertex(testLogger(), Config{}, tt.gen, nil)
			_, err := v.Classify(context.Background(), Input{Text: "x"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
