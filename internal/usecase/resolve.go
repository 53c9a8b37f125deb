package usecase

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"recordchat-agent/internal/domain"
)

// Classifier escalates utterances the rule table cannot place. Implemented by
// the OpenAI integration; tests inject deterministic stubs.
type Classifier interface {
	Classify(ctx context.Context, utterance, defaultObject string) (domain.Intent, error)
}

// operationRule pairs an operation with its matcher and parameter extractor.
// Rules are evaluated in declaration order; the first match wins.
type operationRule struct {
	op      domain.Operation
	match   func(utterance string) bool
	extract func(utterance string) ([]domain.Filter, int)
}

// Resolver turns raw utterances into structured intents: deterministic
// keyword rules first, classifier escalation second, heuristic degradation
// last. Resolve never fails; the worst case is a degraded smalltalk intent.
type Resolver struct {
	rules         []operationRule
	classifier    Classifier
	knownObjects  []string
	defaultObject string
}

// NewResolver builds a Resolver. classifier may be nil, in which case every
// escalation degrades to the heuristic guess.
func NewResolver(classifier Classifier, knownObjects []string, defaultObject string) *Resolver {
	if defaultObject == "" {
		defaultObject = "Account"
	}
	return &Resolver{
		rules:         defaultRules(),
		classifier:    classifier,
		knownObjects:  knownObjects,
		defaultObject: defaultObject,
	}
}

// Resolve maps an utterance to an Intent. hint is an optional explicit object
// name from the caller; lastObject is the most recently discussed object from
// session history.
func (r *Resolver) Resolve(ctx context.Context, utterance, hint, lastObject string) domain.Intent {
	norm := normalize(utterance)
	object := r.inferObject(norm, hint, lastObject)

	if norm == "" {
		return domain.Intent{Operation: domain.OpSmalltalk, TargetObject: object}
	}

	for _, rule := range r.rules {
		if !rule.match(norm) {
			continue
		}
		intent := domain.Intent{Operation: rule.op, TargetObject: object}
		if rule.extract != nil {
			intent.Filters, intent.Limit = rule.extract(norm)
		}
		return intent
	}

	if r.classifier != nil {
		intent, err := r.classifier.Classify(ctx, utterance, object)
		if err == nil {
			return intent
		}
	}
	return r.degradedGuess(norm, object)
}

// degradedGuess is the best-effort fallback when escalation is unavailable.
// The resulting intent is marked Degraded so downstream stages can temper the
// reply.
func (r *Resolver) degradedGuess(norm, object string) domain.Intent {
	if looksLikeDataRequest(norm) {
		return domain.Intent{Operation: domain.OpListRecords, TargetObject: object, Degraded: true}
	}
	return domain.Intent{Operation: domain.OpSmalltalk, TargetObject: object, Degraded: true}
}

func (r *Resolver) inferObject(norm, hint, lastObject string) string {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint
	}
	for _, obj := range r.knownObjects {
		for _, form := range objectForms(strings.ToLower(obj)) {
			if containsWord(norm, form) {
				return obj
			}
		}
	}
	if lastObject != "" {
		return lastObject
	}
	return r.defaultObject
}

// objectForms lists the singular and plural spellings matched for an object.
func objectForms(lower string) []string {
	forms := []string{lower, lower + "s", lower + "es"}
	if strings.HasSuffix(lower, "y") {
		forms = append(forms, strings.TrimSuffix(lower, "y")+"ies")
	}
	return forms
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(s[start-1])
		afterOK := end == len(s) || !isWordChar(s[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

var (
	smalltalkPhrases = []string{
		"hi", "hello", "hey", "good morning", "good afternoon", "good evening",
		"thanks", "thank you", "what can you do", "what can you help",
		"who are you", "how are you", "goodbye", "bye",
	}
	recallPhrases = []string{
		"what did we", "did we discuss", "what have we", "talked about",
		"discussed earlier", "just discuss", "last time", "remember",
		"recap", "so far", "conversation history", "previous question",
	}
	aggregatePhrases = []string{
		"how many", "count of", "count the", "total", "average", "sum of",
		"most used", "used most", "top fields", "usage", "breakdown", "statistics",
	}
	schemaPhrases = []string{
		"schema", "what fields", "which fields", "available fields",
		"field names", "describe", "structure", "columns", "metadata",
		"what can i query", "what can i ask about",
	}
	listPhrases = []string{
		"show", "list", "find", "get me", "give me", "recent", "latest",
		"search", "display", "pull up", "look up", "fetch",
	}
	dataWords = []string{
		"record", "records", "deal", "deals", "data", "report", "pipeline",
	}
)

func defaultRules() []operationRule {
	return []operationRule{
		{
			op: domain.OpSmalltalk,
			match: func(s string) bool {
				for _, p := range smalltalkPhrases {
					if s == p || strings.HasPrefix(s, p+" ") || strings.HasPrefix(s, p+",") || strings.HasPrefix(s, p+"!") || strings.HasPrefix(s, p+"?") {
						return true
					}
				}
				return false
			},
		},
		{
			op:    domain.OpRecallMemory,
			match: func(s string) bool { return containsAny(s, recallPhrases) },
		},
		{
			op:      domain.OpAggregate,
			match:   func(s string) bool { return containsAny(s, aggregatePhrases) },
			extract: extractAggregateParams,
		},
		{
			op:    domain.OpInspectSchema,
			match: func(s string) bool { return containsAny(s, schemaPhrases) },
		},
		{
			op:      domain.OpListRecords,
			match:   func(s string) bool { return containsAny(s, listPhrases) },
			extract: extractListParams,
		},
	}
}

var (
	limitPattern      = regexp.MustCompile(`\b(?:top|first|last)\s+(\d+)\b`)
	countLimitPattern = regexp.MustCompile(`\b(\d+)\s+(?:records|results|rows|entries)\b`)
	namedPattern      = regexp.MustCompile(`\b(?:named|called)\s+"?([a-z0-9][a-z0-9 ]*?)"?(?:$|[.,?!])`)
)

func extractLimit(s string) int {
	for _, re := range []*regexp.Regexp{limitPattern, countLimitPattern} {
		if m := re.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

func extractListParams(s string) ([]domain.Filter, int) {
	var filters []domain.Filter
	switch {
	case strings.Contains(s, "today"):
		filters = append(filters, domain.Filter{Field: "CreatedDate", Operator: ">=", Value: "TODAY"})
	case strings.Contains(s, "this week"):
		filters = append(filters, domain.Filter{Field: "CreatedDate", Operator: ">=", Value: "THIS_WEEK"})
	case strings.Contains(s, "this month"):
		filters = append(filters, domain.Filter{Field: "CreatedDate", Operator: ">=", Value: "THIS_MONTH"})
	case strings.Contains(s, "recent") || strings.Contains(s, "latest") || strings.Contains(s, "newest"):
		filters = append(filters, domain.Filter{Field: "CreatedDate", Operator: ">=", Value: "LAST_N_DAYS:30"})
	}
	if m := namedPattern.FindStringSubmatch(s); m != nil {
		filters = append(filters, domain.Filter{Field: "Name", Operator: "LIKE", Value: strings.TrimSpace(m[1])})
	}
	return filters, extractLimit(s)
}

func extractAggregateParams(s string) ([]domain.Filter, int) {
	return nil, extractLimit(s)
}

func looksLikeDataRequest(norm string) bool {
	if containsAny(norm, dataWords) {
		return true
	}
	return strings.HasSuffix(norm, "?") && containsAny(norm, []string{"which", "what", "where", "who"})
}
