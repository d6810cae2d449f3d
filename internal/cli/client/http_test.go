package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_Get_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tsr_testkey", r.Header.Get("Authorization"))
		assert.Equal(t, "/stats", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"total_fragments":42}}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("tsr_testkey", server.URL)
	require.NoError(t, err)

	resp, err := api.Get("/stats")
	require.NoError(t, err)
	assert.JSONEq(t, `{"total_fragments":42}`, string(resp.Data))
}

func TestAPIClient_Get_FailureEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"status":"failure","errors":[{"provider":"api","code":"NOT_FOUND","message":"run not found"}],"timestamp":"2025-06-01T00:00:00Z"}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("tsr_testkey", server.URL)
	require.NoError(t, err)

	_, err = api.Get("/runs/missing")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "run not found", apiErr.Message)
	assert.Contains(t, apiErr.Error(), "NOT_FOUND")
}

func TestAPIClient_Get_NonEnvelopeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("tsr_testkey", server.URL)
	require.NoError(t, err)

	_, err = api.Get("/stats")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
	assert.Equal(t, "upstream unavailable", apiErr.Message)
}

func TestAPIClient_Post_SendsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "src-1", body["source_id"])

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"data":{"run_id":"run-1"}}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("tsr_testkey", server.URL)
	require.NoError(t, err)

	resp, err := api.Post("/index", map[string]string{"source_id": "src-1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"run_id":"run-1"}`, string(resp.Data))
}

func TestAPIClient_GetWithBody_CarriesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deploy steps", body["query"])

		w.Write([]byte(`{"data":{"fragments":[],"total_tokens":0}}`))
	}))
	defer server.Close()

	api, err := NewAPIClientWithConfig("tsr_testkey", server.URL)
	require.NoError(t, err)

	_, err = api.GetWithBody("/context", map[string]string{"query": "deploy steps"})
	require.NoError(t, err)
}

func TestParseAPIError_EmptyErrorsList(t *testing.T) {
	apiErr := parseAPIError(http.StatusInternalServerError, []byte(`{"status":"failure","errors":[]}`))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, apiErr.Code)
}
