package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heartmarshall/docflow-backend/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleSet is the parsed keyword configuration.
type RuleSet struct {
	Categories []CategoryRule `yaml:"categories"`
	Fallback   struct {
		Name       string  `yaml:"name"`
		Confidence float64 `yaml:"confidence"`
	} `yaml:"fallback"`
	Tags    map[string][]string `yaml:"tags"`
	MaxTags int                 `yaml:"max_tags"`
}

// CategoryRule maps a category name to the keywords that indicate it.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// ParseRules decodes and validates a YAML rule set.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("classifier: parse rules: %w", err)
	}
	if len(rs.Categories) == 0 {
		return nil, fmt.Errorf("classifier: rules define no categories")
	}
	for i, c := range rs.Categories {
		if strings.TrimSpace(c.Name) == "" || len(c.Keywords) == 0 {
			return nil, fmt.Errorf("classifier: category #%d needs a name and keywords", i+1)
		}
		for j, k := range c.Keywords {
			rs.Categories[i].Keywords[j] = strings.ToLower(strings.TrimSpace(k))
		}
	}
	if rs.Fallback.Name == "" {
		rs.Fallback.Name = "Other"
	}
	rs.Fallback.Confidence = clampConfidence(rs.Fallback.Confidence)
	if rs.MaxTags <= 0 {
		rs.MaxTags = 5
	}
	return &rs, nil
}

// LoadRules reads the rule set at path, or the embedded defaults when path
// is empty.
func LoadRules(path string) (*RuleSet, error) {
	data := defaultRules
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("classifier: read rules: %w", err)
		}
	}
	return ParseRules(data)
}

// Rules is the offline keyword classifier.
type Rules struct {
	log   *slog.Logger
	cfg   Config
	rules *RuleSet
}

// NewRules loads the rule set from cfg.RulesPath, or the embedded defaults
// when no path is configured.
func NewRules(log *slog.Logger, cfg Config) (*Rules, error) {
	rs, err := LoadRules(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	return &Rules{
		log:   log.With("adapter", "classifier", "provider", "rules"),
		cfg:   cfg.withDefaults(),
		rules: rs,
	}, nil
}

// Classify scores every category by the share of its keywords present in
// the title and text. Ties go to the category listed first.
func (r *Rules) Classify(ctx context.Context, in Input) (Result, error) {
	if err := checkInput(in, r.cfg.MaxInputChars); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	text := strings.ToLower(in.Title + " " + in.Text)
	words := wordSet(text)

	best, bestScore := -1, 0
	for i, c := range r.rules.Categories {
		score := 0
		for _, k := range c.Keywords {
			if containsKeyword(text, words, k) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}

	res := Result{
		Summary:  Summarize(in.Text, r.cfg.SummarySentences),
		Entities: ExtractEntities(in.Text),
		Tags:     r.tags(text, words),
	}
	if best < 0 {
		res.Category = r.rules.Fallback.Name
		res.Confidence = r.rules.Fallback.Confidence
	} else {
		c := r.rules.Categories[best]
		res.Category = c.Name
		res.Confidence = max(clampConfidence(float64(bestScore)/float64(len(c.Keywords))), r.rules.Fallback.Confidence)
	}

	r.log.DebugContext(ctx, "classified",
		slog.String("category", res.Category),
		slog.Float64("confidence", res.Confidence),
		slog.Int("tags", len(res.Tags)))
	return res, nil
}

func (r *Rules) tags(text string, words map[string]bool) []string {
	names := make([]string, 0, len(r.rules.Tags))
	for name := range r.rules.Tags {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []string
	for _, name := range names {
		if slices.ContainsFunc(r.rules.Tags[name], func(k string) bool {
			return containsKeyword(text, words, strings.ToLower(k))
		}) {
			out = append(out, name)
		}
		if len(out) == r.rules.MaxTags {
			break
		}
	}
	return domain.NormalizeTags(out)
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordRe.FindAllString(text, -1) {
		set[w] = true
	}
	return set
}

// containsKeyword matches single words against whole tokens and phrases
// against the raw lowercased text.
func containsKeyword(text string, words map[string]bool, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(text, keyword)
	}
	return words[keyword]
}
