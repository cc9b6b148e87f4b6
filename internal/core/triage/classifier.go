package triage

import (
	"math"
	"sort"
	"strings"

	"hospital-queue/internal/core/domain"
)

// Source identifies which engine produced a result
type Source string

const (
	SourceRules Source = "rules"
	SourceModel Source = "model"
)

// Result is the outcome of classifying a symptom description
type Result struct {
	SeverityLevel           Severity `json:"severity_level"`
	Confidence              float64  `json:"confidence"`
	RecommendedAction       string   `json:"recommended_action"`
	NeedsImmediateAttention bool     `json:"needs_immediate_attention"`
	SuggestedDepartment     string   `json:"suggested_department,omitempty"`
	MatchedKeywords         []string `json:"matched_keywords"`
	Source                  Source   `json:"source"`
}

const (
	unassessedConfidence = 0.3
	unassessedMessage    = "Unable to assess symptoms automatically. Please consult a healthcare provider or book a regular token."

	maxConfidence   = 0.95
	multiRuleBoost  = 0.15
	perKeywordBoost = 0.02
)

// Classifier is the deterministic keyword rule engine. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over rules. Keywords are lowercased once here.
func NewClassifier(rules []Rule) *Classifier {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		r.Keywords = kws
		normalized[i] = r
	}
	return &Classifier{rules: normalized}
}

// NewDefaultClassifier uses the built-in rule table.
func NewDefaultClassifier() *Classifier {
	return NewClassifier(DefaultRules())
}

// Classify maps free text to a triage result.
func (c *Classifier) Classify(text string) (*Result, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil, domain.Validationf("symptoms text is required")
	}

	var (
		best         *Rule
		matchedRules int
		totalMatched int
		keywords     = make(map[string]struct{})
	)

	for i := range c.rules {
		rule := &c.rules[i]
		hits := 0
		for _, kw := range rule.Keywords {
			if kw == "" || !strings.Contains(normalized, kw) {
				continue
			}
			hits++
			keywords[kw] = struct{}{}
		}
		if hits == 0 {
			continue
		}
		matchedRules++
		totalMatched += hits
		// strict less keeps the first rule declared at a given priority
		if best == nil || rule.Priority < best.Priority {
			best = rule
		}
	}

	if best == nil {
		return &Result{
			SeverityLevel:           SeverityLow,
			Confidence:              unassessedConfidence,
			RecommendedAction:       unassessedMessage,
			NeedsImmediateAttention: false,
			MatchedKeywords:         []string{},
			Source:                  SourceRules,
		}, nil
	}

	matched := make([]string, 0, len(keywords))
	for kw := range keywords {
		matched = append(matched, kw)
	}
	sort.Strings(matched)

	return &Result{
		SeverityLevel:           best.Severity,
		Confidence:              confidence(best.Priority, matchedRules, totalMatched),
		RecommendedAction:       best.Message,
		NeedsImmediateAttention: best.Severity.Urgent(),
		SuggestedDepartment:     best.SuggestedDepartment,
		MatchedKeywords:         matched,
		Source:                  SourceRules,
	}, nil
}

func confidence(priority, matchedRules, totalKeywords int) float64 {
	var base float64
	switch {
	case priority <= 10:
		base = 0.85
	case priority <= 20:
		base = 0.75
	default:
		base = 0.65
	}

	boost := 0.0
	if matchedRules > 1 {
		boost = multiRuleBoost
	}

	score := math.Min(maxConfidence, base+boost+perKeywordBoost*float64(totalKeywords))
	return math.Round(score*100) / 100
}
