package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"recordchat-agent/internal/domain"
	"recordchat-agent/internal/integrations/platform"
	"recordchat-agent/internal/usecase"
)

type stubAgent struct {
	out       usecase.ProcessOutput
	err       error
	in        usecase.ProcessInput
	stats     domain.SessionStats
	statsUser string
	bundle    platform.ContextBundle
	bundleErr error
	refreshed string
}

func (s *stubAgent) ProcessMessage(_ context.Context, in usecase.ProcessInput) (usecase.ProcessOutput, error) {
	s.in = in
	return s.out, s.err
}

func (s *stubAgent) ConversationStats(_ context.Context, userID string) domain.SessionStats {
	s.statsUser = userID
	return s.stats
}

func (s *stubAgent) RefreshObjectContext(_ context.Context, objectName string) (platform.ContextBundle, error) {
	s.refreshed = objectName
	return s.bundle, s.bundleErr
}

func makeEvent(method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_Chat_HappyPath(t *testing.T) {
	agent := &stubAgent{out: usecase.ProcessOutput{
		Response:       "I found 2 Opportunity records.",
		FunctionCalled: usecase.FnExecuteQuery,
		FunctionResult: &domain.CapabilityResult{RecordCount: 2, Fields: []string{"Id", "Name"}},
	}}
	h, err := NewHandler(agent)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"userId":"u-1","text":"show me opportunities"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, usecase.ProcessInput{UserID: "u-1", Text: "show me opportunities"}, agent.in)

	out := parseBody[chatResponse](t, resp.Body)
	require.Equal(t, "I found 2 Opportunity records.", out.Response)
	require.Equal(t, usecase.FnExecuteQuery, out.FunctionCalled)
	require.NotNil(t, out.FunctionResult)
	require.Equal(t, 2, out.FunctionResult.RecordCount)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])
}

func TestHandle_Chat_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubAgent{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
}

func TestHandle_Chat_MapsAgentErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_user_id"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "schema mismatch", err: &usecase.Error{Code: usecase.ErrorSchemaMismatch, Reason: "no_discovered_fields"}, status: http.StatusUnprocessableEntity, code: string(usecase.ErrorSchemaMismatch)},
		{name: "timeout", err: &usecase.Error{Code: usecase.ErrorCapabilityTimeout, Reason: "execute_query"}, status: http.StatusGatewayTimeout, code: string(usecase.ErrorCapabilityTimeout)},
		{name: "unavailable", err: &usecase.Error{Code: usecase.ErrorCapabilityUnavailable, Reason: "execute_query"}, status: http.StatusBadGateway, code: string(usecase.ErrorCapabilityUnavailable)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "store_write_error"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := NewHandler(&stubAgent{err: tc.err})
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/chat", `{"userId":"u-1","text":"hi"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_Stats(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	agent := &stubAgent{stats: domain.SessionStats{
		MessageCount: 7,
		Duration:     90 * time.Second,
		StartedAt:    started,
	}}
	h, err := NewHandler(agent)
	require.NoError(t, err)

	event := makeEvent(http.MethodGet, "/stats", "")
	event.QueryStringParameters = map[string]string{"userId": "u-1"}
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "u-1", agent.statsUser)

	out := parseBody[statsResponse](t, resp.Body)
	require.Equal(t, 7, out.MessageCount)
	require.Equal(t, int64(90000), out.DurationMs)
	require.Equal(t, "2026-03-01T10:00:00Z", out.StartedAt)
}

func TestHandle_Stats_MissingUserID(t *testing.T) {
	h, err := NewHandler(&stubAgent{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/stats", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_RefreshContext(t *testing.T) {
	agent := &stubAgent{bundle: platform.ContextBundle{BundleID: "b-1", Artifacts: []string{"schema", "samples"}}}
	h, err := NewHandler(agent)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodPost, "/refresh-context", `{"objectName":"Opportunity"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Opportunity", agent.refreshed)

	out := parseBody[refreshResponse](t, resp.Body)
	require.Equal(t, "b-1", out.BundleID)
	require.Equal(t, []string{"schema", "samples"}, out.Artifacts)
}

func TestHandle_UnknownRoute(t *testing.T) {
	h, err := NewHandler(&stubAgent{})
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(http.MethodGet, "/nope", ""))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	h, err := NewHandler(&stubAgent{out: usecase.ProcessOutput{Response: "hi"}})
	require.NoError(t, err)

	event := makeEvent(http.MethodPost, "/chat", `{"userId":"u-1","text":"hi"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
}
