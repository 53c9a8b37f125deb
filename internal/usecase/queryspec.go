package usecase

import (
	"fmt"
	"strings"

	"recordchat-agent/internal/domain"
	"recordchat-agent/internal/integrations/platform"
)

// preferredFields are schema-agnostic defaults tried first when the intent
// names no fields of its own.
var preferredFields = []string{"Id", "Name", "CreatedDate"}

const maxSelectedFields = 6

// SynthesizeQuery builds a bounded, schema-valid QuerySpec from a resolved
// intent and the object's discovered metadata. It is a pure function of its
// inputs: identical inputs always produce an identical spec.
//
// Filters referencing fields absent from availableFields are dropped and
// reported through the returned warnings instead of failing the query. The
// only failure mode is an object with no discovered fields at all.
func SynthesizeQuery(
	intent domain.Intent,
	availableFields []string,
	insights platform.ObjectInsights,
	defaultLimit, maxLimit int,
) (domain.QuerySpec, []string, error) {
	if len(availableFields) == 0 {
		return domain.QuerySpec{}, nil, newError(ErrorSchemaMismatch, "no_discovered_fields",
			fmt.Errorf("object %q has no available fields", intent.TargetObject))
	}
	if defaultLimit <= 0 {
		defaultLimit = 5
	}
	if maxLimit <= 0 {
		maxLimit = 50
	}

	available := make(map[string]string, len(availableFields))
	for _, f := range availableFields {
		available[strings.ToLower(f)] = f
	}

	fields := selectFields(available, availableFields, insights)

	var (
		filters  []domain.Filter
		warnings []string
	)
	for _, f := range intent.Filters {
		canonical, ok := available[strings.ToLower(f.Field)]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("dropped filter on unknown field %q", f.Field))
			continue
		}
		filters = append(filters, domain.Filter{Field: canonical, Operator: f.Operator, Value: f.Value})
	}

	limit := intent.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return domain.QuerySpec{
		Object:  intent.TargetObject,
		Fields:  fields,
		Filters: filters,
		Limit:   limit,
	}, warnings, nil
}

// selectFields picks a bounded default field set: universal preferred fields
// first, then the platform's commonly-used and suggested fields, then the
// discovery order of the schema itself. Candidate order is fixed, so the
// selection is deterministic.
func selectFields(available map[string]string, availableFields []string, insights platform.ObjectInsights) []string {
	candidates := make([]string, 0, maxSelectedFields*2)
	candidates = append(candidates, preferredFields...)
	candidates = append(candidates, insights.CommonFields...)
	for _, sq := range insights.SuggestedQueries {
		candidates = append(candidates, sq.Fields...)
	}
	candidates = append(candidates, availableFields...)

	seen := make(map[string]bool, maxSelectedFields)
	fields := make([]string, 0, maxSelectedFields)
	for _, c := range candidates {
		canonical, ok := available[strings.ToLower(c)]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		fields = append(fields, canonical)
		if len(fields) == maxSelectedFields {
			break
		}
	}
	return fields
}
