package analyzer

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func ollamaConfig(t *testing.T, rawURL, model string) AgentConfig {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return AgentConfig{
		BaseURL: u.Scheme + "://" + u.Hostname(),
		Port:    port,
		Model:   model,
	}
}

func TestNewAgentChecksOllamaAndBuildsAgent(t *testing.T) {
	var requestedPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	visionAgent, err := NewAgent(t.Context(), ollamaConfig(t, server.URL, "llama3.2-vision:11b"), nil)
	require.NoError(t, err)
	require.NotNil(t, visionAgent)
	require.Equal(t, "/api/tags", requestedPath)
}

func TestNewAgentFailsWhenOllamaUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := NewAgent(t.Context(), ollamaConfig(t, endpoint, "llama3.2-vision:11b"), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not reachable")
}
