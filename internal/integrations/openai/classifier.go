package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"recordchat-agent/internal/domain"
)

const classifierInstructions = `You classify user utterances addressed to a CRM data assistant into one structured intent.

Operations:
- inspect-schema: the user asks what an object looks like, which fields exist, or what they can query.
- list-records: the user asks to see, find, or list records.
- aggregate: the user asks for counts, totals, rankings, or usage statistics.
- recall-memory: the user refers to something from earlier in this conversation.
- smalltalk: greetings, thanks, meta questions about the assistant, or anything that needs no data.

Rules:
- target_object is the CRM object the utterance is about, in singular PascalCase (for example Opportunity, Account, Contact). Use the provided default when the utterance names none.
- Extract filter triples only when the utterance clearly states a condition. Operators: =, !=, >, <, >=, <=, LIKE.
- limit is the number of records the user asked for, or 0 when unspecified.
- Never invent filters or limits.`

// intentPayload is the strict structured-output shape the model must return.
type intentPayload struct {
	Operation    string `json:"operation" jsonschema:"enum=inspect-schema,enum=list-records,enum=aggregate,enum=recall-memory,enum=smalltalk"`
	TargetObject string `json:"target_object"`
	Filters      []struct {
		Field    string `json:"field"`
		Operator string `json:"operator"`
		Value    string `json:"value"`
	} `json:"filters"`
	Limit int `json:"limit"`
}

var intentSchema = generateSchema[intentPayload]()

// Classifier resolves ambiguous utterances into structured intents through
// the OpenAI Responses API with a strict JSON schema.
type Classifier struct {
	client *openai.Client
	model  string
}

// NewClassifier creates a Classifier using the given API key and model.
func NewClassifier(apiKey, model string) (*Classifier, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Classifier{client: &client, model: model}, nil
}

// Classify asks the model for the intent behind utterance. defaultObject is
// the object to assume when the utterance names none.
func (c *Classifier) Classify(ctx context.Context, utterance, defaultObject string) (domain.Intent, error) {
	if c == nil || c.client == nil {
		return domain.Intent{}, errors.New("openai: classifier not initialized")
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return domain.Intent{}, errors.New("openai: utterance must not be empty")
	}

	input := fmt.Sprintf("Default object: %s\n\nUtterance:\n%s", defaultObject, utterance)

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(500),
		Instructions:    openai.String(classifierInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        "UtteranceIntent",
					Schema:      intentSchema,
					Strict:      openai.Bool(true),
					Description: openai.String("Structured intent for one utterance"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return domain.Intent{}, fmt.Errorf("openai: classify request: %w", err)
	}

	var out intentPayload
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return domain.Intent{}, fmt.Errorf("openai: decode intent: %w", err)
	}
	return toIntent(out, defaultObject)
}

func toIntent(p intentPayload, defaultObject string) (domain.Intent, error) {
	op := domain.Operation(strings.TrimSpace(p.Operation))
	switch op {
	case domain.OpInspectSchema, domain.OpListRecords, domain.OpAggregate, domain.OpRecallMemory, domain.OpSmalltalk:
	default:
		return domain.Intent{}, fmt.Errorf("openai: model returned unknown operation %q", p.Operation)
	}

	object := strings.TrimSpace(p.TargetObject)
	if object == "" {
		object = defaultObject
	}

	intent := domain.Intent{
		Operation:    op,
		TargetObject: object,
	}
	for _, f := range p.Filters {
		if strings.TrimSpace(f.Field) == "" {
			continue
		}
		intent.Filters = append(intent.Filters, domain.Filter{
			Field:    strings.TrimSpace(f.Field),
			Operator: strings.TrimSpace(f.Operator),
			Value:    f.Value,
		})
	}
	if p.Limit > 0 {
		intent.Limit = p.Limit
	}
	return intent, nil
}
