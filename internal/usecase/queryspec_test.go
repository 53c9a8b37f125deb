package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"

	"recordchat-agent/internal/domain"
	"recordchat-agent/internal/integrations/platform"
)

func opportunityFields() []string {
	return []string{"Id", "Name", "StageName", "Amount", "CloseDate", "CreatedDate", "OwnerId", "Probability"}
}

func TestSynthesizeQuery_FieldsAreSubsetOfSchema(t *testing.T) {
	intent := domain.Intent{Operation: domain.OpListRecords, TargetObject: "Opportunity"}
	available := opportunityFields()

	spec, warnings, err := SynthesizeQuery(intent, available, platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.NotEmpty(t, spec.Fields)
	require.LessOrEqual(t, len(spec.Fields), maxSelectedFields)

	known := make(map[string]bool, len(available))
	for _, f := range available {
		known[f] = true
	}
	for _, f := range spec.Fields {
		require.True(t, known[f], "selected field %q is not in the schema", f)
	}
}

func TestSynthesizeQuery_PrefersCommonFields(t *testing.T) {
	intent := domain.Intent{Operation: domain.OpListRecords, TargetObject: "Opportunity"}
	insights := platform.ObjectInsights{CommonFields: []string{"StageName", "Amount"}}

	spec, _, err := SynthesizeQuery(intent, opportunityFields(), insights, 5, 50)
	require.NoError(t, err)
	require.Equal(t, []string{"Id", "Name", "CreatedDate", "StageName", "Amount", "CloseDate"}, spec.Fields)
}

func TestSynthesizeQuery_Deterministic(t *testing.T) {
	intent := domain.Intent{
		Operation:    domain.OpListRecords,
		TargetObject: "Opportunity",
		Filters:      []domain.Filter{{Field: "createddate", Operator: ">=", Value: "THIS_WEEK"}},
		Limit:        7,
	}
	insights := platform.ObjectInsights{
		CommonFields:     []string{"StageName"},
		SuggestedQueries: []platform.SuggestedQuery{{Fields: []string{"Amount", "CloseDate"}}},
	}

	first, _, err := SynthesizeQuery(intent, opportunityFields(), insights, 5, 50)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, _, err := SynthesizeQuery(intent, opportunityFields(), insights, 5, 50)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestSynthesizeQuery_CanonicalizesFilterFieldCase(t *testing.T) {
	intent := domain.Intent{
		Operation:    domain.OpListRecords,
		TargetObject: "Opportunity",
		Filters:      []domain.Filter{{Field: "createddate", Operator: ">=", Value: "TODAY"}},
	}

	spec, warnings, err := SynthesizeQuery(intent, opportunityFields(), platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, []domain.Filter{{Field: "CreatedDate", Operator: ">=", Value: "TODAY"}}, spec.Filters)
}

func TestSynthesizeQuery_DropsUnknownFilterFieldsWithWarning(t *testing.T) {
	intent := domain.Intent{
		Operation:    domain.OpListRecords,
		TargetObject: "Opportunity",
		Filters: []domain.Filter{
			{Field: "NoSuchField", Operator: "=", Value: "x"},
			{Field: "Name", Operator: "LIKE", Value: "acme"},
		},
	}

	spec, warnings, err := SynthesizeQuery(intent, opportunityFields(), platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Equal(t, []domain.Filter{{Field: "Name", Operator: "LIKE", Value: "acme"}}, spec.Filters)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "NoSuchField")
}

func TestSynthesizeQuery_LimitDefaultsAndClamps(t *testing.T) {
	base := domain.Intent{Operation: domain.OpListRecords, TargetObject: "Opportunity"}

	spec, _, err := SynthesizeQuery(base, opportunityFields(), platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Equal(t, 5, spec.Limit)

	withLimit := base
	withLimit.Limit = 500
	spec, _, err = SynthesizeQuery(withLimit, opportunityFields(), platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Equal(t, 50, spec.Limit)

	withLimit.Limit = 12
	spec, _, err = SynthesizeQuery(withLimit, opportunityFields(), platform.ObjectInsights{}, 5, 50)
	require.NoError(t, err)
	require.Equal(t, 12, spec.Limit)
}

func TestSynthesizeQuery_NoDiscoveredFields(t *testing.T) {
	intent := domain.Intent{Operation: domain.OpListRecords, TargetObject: "Mystery"}

	_, _, err := SynthesizeQuery(intent, nil, platform.ObjectInsights{}, 5, 50)
	var typed *Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, ErrorSchemaMismatch, typed.Code)
	require.Equal(t, "no_discovered_fields", typed.Reason)
}
