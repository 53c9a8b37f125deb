package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"recordchat-agent/internal/domain"
)

// Capability call names recorded on turns and echoed to callers.
const (
	FnExecuteQuery   = "execute_query"
	FnObjectInsights = "object_insights"
	FnTopFields      = "top_fields"
)

// DispatchOutcome is what one turn's capability dispatch produced: either a
// result from exactly one call, or a typed error, or neither for operations
// that need no external data.
type DispatchOutcome struct {
	FunctionCalled string
	Result         *domain.CapabilityResult
	Err            *Error
	Warnings       []string
}

// dispatch performs at most one capability call for the turn, chosen by the
// intent's operation. The call is bounded by the configured timeout; expiry
// surfaces as CAPABILITY_TIMEOUT rather than a retry.
func (s *ChatService) dispatch(ctx context.Context, intent domain.Intent, spec domain.QuerySpec) DispatchOutcome {
	switch intent.Operation {
	case domain.OpRecallMemory, domain.OpSmalltalk:
		return DispatchOutcome{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.capabilityTimeout)
	defer cancel()

	switch intent.Operation {
	case domain.OpListRecords:
		res, err := s.capability.ExecuteQuery(callCtx, spec)
		if err != nil {
			return DispatchOutcome{FunctionCalled: FnExecuteQuery, Err: capabilityError(FnExecuteQuery, err)}
		}
		return DispatchOutcome{
			FunctionCalled: FnExecuteQuery,
			Result: &domain.CapabilityResult{
				RecordCount: res.TotalSize,
				Fields:      spec.Fields,
				Records:     res.Records,
			},
		}
	case domain.OpAggregate:
		n := intent.Limit
		if n <= 0 {
			n = 5
		}
		fields, err := s.capability.TopFields(callCtx, intent.TargetObject, n)
		if err != nil {
			return DispatchOutcome{FunctionCalled: FnTopFields, Err: capabilityError(FnTopFields, err)}
		}
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			names = append(names, f.Field)
		}
		return DispatchOutcome{
			FunctionCalled: FnTopFields,
			Result: &domain.CapabilityResult{
				RecordCount: len(fields),
				Fields:      names,
				Summary:     fmt.Sprintf("top %d fields by usage: %s", len(fields), strings.Join(names, ", ")),
			},
		}
	case domain.OpInspectSchema:
		insights, err := s.capability.ObjectInsights(callCtx, intent.TargetObject)
		if err != nil {
			return DispatchOutcome{FunctionCalled: FnObjectInsights, Err: capabilityError(FnObjectInsights, err)}
		}
		return DispatchOutcome{
			FunctionCalled: FnObjectInsights,
			Result: &domain.CapabilityResult{
				RecordCount: insights.FieldCount,
				Fields:      insights.CommonFields,
				Summary: fmt.Sprintf("%s exposes %d queryable fields across %d record types",
					intent.TargetObject, insights.FieldCount, len(insights.RecordTypes)),
			},
		}
	default:
		return DispatchOutcome{Err: newError(ErrorInternal, "unknown_operation",
			fmt.Errorf("operation %q has no dispatch mapping", intent.Operation))}
	}
}

// capabilityError maps a transport failure to the turn-level taxonomy:
// deadline expiry is CAPABILITY_TIMEOUT, everything else CAPABILITY_UNAVAILABLE.
func capabilityError(fn string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorCapabilityTimeout, fn+"_timeout", err)
	}
	return newError(ErrorCapabilityUnavailable, fn+"_failed", err)
}
