package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"recordchat-agent/internal/domain"
)

type fakeGetter struct {
	vals  map[string]string
	err   error
	calls int
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.vals[name]
	if !ok {
		return "", fmt.Errorf("param not found: %s", name)
	}
	return v, nil
}

func tokenGetter() *fakeGetter {
	return &fakeGetter{vals: map[string]string{
		"/prefix/platform-api-token": `{"token":"secret-token"}`,
	}}
}

func newTestClient(t *testing.T, srv *httptest.Server, ps Getter) *Client {
	t.Helper()
	c, err := NewClient(srv.URL, ps, "/prefix", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("", tokenGetter(), "/prefix")
	require.Error(t, err)

	_, err = NewClient("http://example.test", nil, "/prefix")
	require.Error(t, err)

	_, err = NewClient("http://example.test", tokenGetter(), "  ")
	require.Error(t, err)
}

func TestHealth_SendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok", Version: "1.4.0"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokenGetter())
	out, err := c.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", out.Status)
	require.Equal(t, "1.4.0", out.Version)
}

func TestResolveAPIKey_FetchedOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "ok"})
	}))
	defer srv.Close()

	ps := tokenGetter()
	c := newTestClient(t, srv, ps)
	for i := 0; i < 3; i++ {
		_, err := c.Health(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 1, ps.calls)
}

func TestResolveAPIKey_RejectsMalformedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected when the token cannot be resolved")
	}))
	defer srv.Close()

	ps := &fakeGetter{vals: map[string]string{"/prefix/platform-api-token": "not-json"}}
	c := newTestClient(t, srv, ps)
	_, err := c.Health(context.Background())
	require.Error(t, err)
}

func TestAvailableFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/objects/Opportunity/fields", r.URL.Path)
		_, _ = w.Write([]byte(`{"fields":["Id","Name","StageName"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokenGetter())
	fields, err := c.AvailableFields(context.Background(), "Opportunity")
	require.NoError(t, err)
	require.Equal(t, []string{"Id", "Name", "StageName"}, fields)

	_, err = c.AvailableFields(context.Background(), " ")
	require.Error(t, err)
}

func TestExecuteQuery(t *testing.T) {
	var received domain.QuerySpec
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/query", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"total_size":1,"records":[{"Id":"006-1","Name":"Acme"}]}`))
	}))
	defer srv.Close()

	spec := domain.QuerySpec{
		Object: "Opportunity",
		Fields: []string{"Id", "Name"},
		Limit:  5,
	}
	c := newTestClient(t, srv, tokenGetter())
	out, err := c.ExecuteQuery(context.Background(), spec)
	require.NoError(t, err)
	require.Equal(t, 1, out.TotalSize)
	require.Equal(t, "Acme", out.Records[0]["Name"])
	require.Equal(t, spec, received)
}

func TestExecuteQuery_Validation(t *testing.T) {
	c, err := NewClient("http://example.test", tokenGetter(), "/prefix")
	require.NoError(t, err)

	_, err = c.ExecuteQuery(context.Background(), domain.QuerySpec{Limit: 5})
	require.Error(t, err)

	_, err = c.ExecuteQuery(context.Background(), domain.QuerySpec{Object: "Account"})
	require.Error(t, err)
}

func TestTopFields_DefaultsN(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "10", r.URL.Query().Get("n"))
		_, _ = w.Write([]byte(`{"fields":[{"field":"StageName","usage_score":0.9}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokenGetter())
	fields, err := c.TopFields(context.Background(), "Opportunity", 0)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	require.Equal(t, "StageName", fields[0].Field)
}

func TestGenerateContextBundle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/objects/Account/context-bundle", r.URL.Path)
		var opts BundleOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		require.True(t, opts.IncludeSamples)
		_, _ = w.Write([]byte(`{"bundle_id":"b-1","artifacts":["schema","samples"]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokenGetter())
	bundle, err := c.GenerateContextBundle(context.Background(), "Account", BundleOptions{IncludeSamples: true})
	require.NoError(t, err)
	require.Equal(t, "b-1", bundle.BundleID)
	require.Equal(t, []string{"schema", "samples"}, bundle.Artifacts)
}

func TestDo_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, tokenGetter())
	_, err := c.Health(context.Background())

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	require.Equal(t, "maintenance", statusErr.Body)
}
