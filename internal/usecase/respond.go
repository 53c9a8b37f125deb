package usecase

import (
	"fmt"
	"strings"

	"recordchat-agent/internal/domain"
)

// respond converts a dispatch outcome (or its absence) into the user-facing
// reply. History is the session window strictly before the current turn, so
// recall replies never reference themselves.
func respond(intent domain.Intent, outcome DispatchOutcome, history []domain.Turn) string {
	if outcome.Err != nil {
		return errorReply(intent, outcome.Err)
	}

	switch intent.Operation {
	case domain.OpSmalltalk:
		return smalltalkReply(intent)
	case domain.OpRecallMemory:
		return recallReply(history)
	case domain.OpListRecords:
		return recordsReply(intent, outcome)
	case domain.OpAggregate:
		return aggregateReply(intent, outcome)
	case domain.OpInspectSchema:
		return schemaReply(intent, outcome)
	default:
		return "I'm not sure how to help with that yet."
	}
}

func errorReply(intent domain.Intent, err *Error) string {
	switch err.Code {
	case ErrorSchemaMismatch:
		return fmt.Sprintf("I'm sorry, I don't have field information for %s yet, so I couldn't run that. Try another object or ask me to refresh its context.", intent.TargetObject)
	case ErrorCapabilityTimeout:
		return "I'm sorry, that request took too long to complete. Please try again in a moment."
	case ErrorCapabilityUnavailable:
		return "I'm sorry, I couldn't reach the data service just now. Please try again shortly."
	default:
		return "I'm sorry, something went wrong while handling that. Please try again."
	}
}

func smalltalkReply(intent domain.Intent) string {
	if intent.Degraded {
		return "I'm not quite sure what you're after. I can list records, summarize an object's fields, or show usage statistics - just name an object like Account or Opportunity."
	}
	return "Hi! I can help you explore your data: ask me to show records, describe an object's fields, or break down field usage. What would you like to look at?"
}

func recallReply(history []domain.Turn) string {
	if len(history) == 0 {
		return "We haven't discussed anything yet in this conversation. Ask me about your records to get started."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "So far we've had %d exchange", len(history))
	if len(history) != 1 {
		b.WriteString("s")
	}
	b.WriteString(" in this conversation.")

	recent := history
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	b.WriteString(" Most recently: ")
	parts := make([]string, 0, len(recent))
	for _, t := range recent {
		p := fmt.Sprintf("you asked %q", t.Utterance)
		if t.FunctionCalled != "" {
			p += fmt.Sprintf(" (answered via %s)", t.FunctionCalled)
		}
		parts = append(parts, p)
	}
	b.WriteString(strings.Join(parts, "; "))
	b.WriteString(".")
	return b.String()
}

func recordsReply(intent domain.Intent, outcome DispatchOutcome) string {
	res := outcome.Result
	if res == nil || res.RecordCount == 0 {
		return fmt.Sprintf("I ran the query but nothing matched for %s.", intent.TargetObject)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "I found %d %s record", res.RecordCount, intent.TargetObject)
	if res.RecordCount != 1 {
		b.WriteString("s")
	}
	fmt.Fprintf(&b, " using %s", outcome.FunctionCalled)
	if len(res.Fields) > 0 {
		fmt.Fprintf(&b, ", showing %s", strings.Join(res.Fields, ", "))
	}
	b.WriteString(".")
	appendWarnings(&b, outcome.Warnings)
	return b.String()
}

func aggregateReply(intent domain.Intent, outcome DispatchOutcome) string {
	res := outcome.Result
	if res == nil || res.RecordCount == 0 {
		return fmt.Sprintf("I couldn't find any usage statistics for %s.", intent.TargetObject)
	}
	return fmt.Sprintf("Here's the usage breakdown for %s (via %s): %s.",
		intent.TargetObject, outcome.FunctionCalled, res.Summary)
}

func schemaReply(intent domain.Intent, outcome DispatchOutcome) string {
	res := outcome.Result
	if res == nil {
		return fmt.Sprintf("I couldn't retrieve schema details for %s.", intent.TargetObject)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d queryable fields", intent.TargetObject, res.RecordCount)
	if len(res.Fields) > 0 {
		fmt.Fprintf(&b, "; commonly used ones are %s", strings.Join(res.Fields, ", "))
	}
	fmt.Fprintf(&b, " (via %s).", outcome.FunctionCalled)
	return b.String()
}

func appendWarnings(b *strings.Builder, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(b, " Note: %s.", strings.Join(warnings, "; "))
}
