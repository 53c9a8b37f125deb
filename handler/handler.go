// Package handler exposes the agent over API Gateway proxy events.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"recordchat-agent/internal/domain"
	"recordchat-agent/internal/integrations/platform"
	"recordchat-agent/internal/usecase"
)

// Agent is the conversational surface the handler forwards to.
type Agent interface {
	ProcessMessage(ctx context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error)
	ConversationStats(ctx context.Context, userID string) domain.SessionStats
	RefreshObjectContext(ctx context.Context, objectName string) (platform.ContextBundle, error)
}

type Handler struct {
	agent Agent
}

func NewHandler(agent Agent) (*Handler, error) {
	if agent == nil {
		return nil, errors.New("handler: agent must not be nil")
	}
	return &Handler{agent: agent}, nil
}

type chatRequest struct {
	UserID     string `json:"userId"`
	Text       string `json:"text"`
	ObjectHint string `json:"objectHint,omitempty"`
}

type functionResultResponse struct {
	RecordCount int      `json:"recordCount"`
	Fields      []string `json:"fields,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

type chatResponse struct {
	Response       string                  `json:"response"`
	FunctionCalled string                  `json:"functionCalled,omitempty"`
	FunctionResult *functionResultResponse `json:"functionResult,omitempty"`
}

type statsResponse struct {
	MessageCount int    `json:"messageCount"`
	DurationMs   int64  `json:"durationMs"`
	StartedAt    string `json:"startedAt,omitempty"`
}

type refreshRequest struct {
	ObjectName string `json:"objectName"`
}

type refreshResponse struct {
	BundleID  string   `json:"bundleId"`
	Artifacts []string `json:"artifacts,omitempty"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// Handle routes one API Gateway event. Supported routes:
//
//	POST /chat             process one user message
//	GET  /stats            conversation stats (query param userId)
//	POST /refresh-context  regenerate a discovery bundle for an object
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(event.Headers)

	switch {
	case event.HTTPMethod == http.MethodPost && event.Path == "/chat":
		return h.handleChat(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodGet && event.Path == "/stats":
		return h.handleStats(ctx, event, corrID), nil
	case event.HTTPMethod == http.MethodPost && event.Path == "/refresh-context":
		return h.handleRefresh(ctx, event, corrID), nil
	default:
		return respondJSON(http.StatusNotFound, corrID, errorResponse{Error: "NOT_FOUND"}), nil
	}
}

func (h *Handler) handleChat(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var req chatRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "invalid_json_body",
		})
	}

	out, err := h.agent.ProcessMessage(ctx, usecase.ProcessInput{
		UserID:     req.UserID,
		Text:       req.Text,
		ObjectHint: req.ObjectHint,
	})
	if err != nil {
		return errorToResponse(err, corrID)
	}

	resp := chatResponse{
		Response:       out.Response,
		FunctionCalled: out.FunctionCalled,
	}
	if out.FunctionResult != nil {
		resp.FunctionResult = &functionResultResponse{
			RecordCount: out.FunctionResult.RecordCount,
			Fields:      out.FunctionResult.Fields,
			Summary:     out.FunctionResult.Summary,
		}
	}
	return respondJSON(http.StatusOK, corrID, resp)
}

func (h *Handler) handleStats(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	userID := event.QueryStringParameters["userId"]
	if userID == "" {
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "missing_user_id",
		})
	}

	stats := h.agent.ConversationStats(ctx, userID)
	resp := statsResponse{
		MessageCount: stats.MessageCount,
		DurationMs:   stats.Duration.Milliseconds(),
	}
	if !stats.StartedAt.IsZero() {
		resp.StartedAt = stats.StartedAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return respondJSON(http.StatusOK, corrID, resp)
}

func (h *Handler) handleRefresh(ctx context.Context, event events.APIGatewayProxyRequest, corrID string) events.APIGatewayProxyResponse {
	var req refreshRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		return respondJSON(http.StatusBadRequest, corrID, errorResponse{
			Error:  string(usecase.ErrorInvalidInput),
			Reason: "invalid_json_body",
		})
	}

	bundle, err := h.agent.RefreshObjectContext(ctx, req.ObjectName)
	if err != nil {
		return errorToResponse(err, corrID)
	}
	return respondJSON(http.StatusOK, corrID, refreshResponse{
		BundleID:  bundle.BundleID,
		Artifacts: bundle.Artifacts,
	})
}

func errorToResponse(err error, corrID string) events.APIGatewayProxyResponse {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return respondJSON(http.StatusInternalServerError, corrID, errorResponse{Error: string(usecase.ErrorInternal)})
	}

	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorSchemaMismatch:
		status = http.StatusUnprocessableEntity
	case usecase.ErrorCapabilityTimeout:
		status = http.StatusGatewayTimeout
	case usecase.ErrorCapabilityUnavailable:
		status = http.StatusBadGateway
	}
	return respondJSON(status, corrID, errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason})
}

func respondJSON(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":     "application/json",
			"X-Correlation-Id": corrID,
		},
		Body: string(body),
	}
}

// correlationID reuses a caller-provided X-Correlation-Id header
// (case-insensitive) or mints a fresh one.
func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if http.CanonicalHeaderKey(k) == "X-Correlation-Id" && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
