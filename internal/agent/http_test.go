package agent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPExecutorSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	e := NewHTTPExecutor()
	inv := Invocation{Plan: Plan{Kind: "http", Config: map[string]any{
		"method": "GET",
		"url":    server.URL,
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultSuccess, result.Kind)
}

func TestHTTPExecutorServerErrorOnIdempotentMethodIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewHTTPExecutor()
	inv := Invocation{Plan: Plan{Kind: "http", Config: map[string]any{
		"method": "GET",
		"url":    server.URL,
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
	assert.Equal(t, TransportUnavailable, result.TransportKind)
}

func TestHTTPExecutorServerErrorOnNonIdempotentMethodIsToolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := NewHTTPExecutor()
	inv := Invocation{Plan: Plan{Kind: "http", Config: map[string]any{
		"method": "POST",
		"url":    server.URL,
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultToolError, result.Kind)
}

func TestHTTPExecutorClientErrorIsToolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := NewHTTPExecutor()
	inv := Invocation{Plan: Plan{Kind: "http", Config: map[string]any{
		"method": "GET",
		"url":    server.URL,
	}}}

	result, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, ResultToolError, result.Kind)
}

func TestHTTPExecutorMissingURLIsConfigError(t *testing.T) {
	e := NewHTTPExecutor()
	result, err := e.Execute(context.Background(), Invocation{Plan: Plan{Kind: "http", Config: map[string]any{}}})
	require.NoError(t, err)
	assert.Equal(t, ResultTransportError, result.Kind)
	assert.Equal(t, TransportConfig, result.TransportKind)
}

func TestHTTPExecutorSendsJSONBody(t *testing.T) {
	var receivedContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	e := NewHTTPExecutor()
	inv := Invocation{Plan: Plan{Kind: "http", Config: map[string]any{
		"method": "POST",
		"url":    server.URL,
		"body":   map[string]any{"key": "value"},
	}}}

	_, err := e.Execute(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "application/json", receivedContentType)
}
