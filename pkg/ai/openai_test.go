package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memoryFiles map[string][]byte

func (m memoryFiles) Read(_ context.Context, path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, errors.New("missing file")
	}
	return data, nil
}

func newTestServer(t *testing.T, status int, content string, inspect func(body map[string]interface{})) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if inspect != nil {
			inspect(body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= http.StatusBadRequest {
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
			return
		}
		payload := map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}}},
			"usage":   map[string]int{"total_tokens": 42},
		}
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
}

func TestOpenAIGraderGradesDocument(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `[{"task_number":1,"points_earned":3,"max_points":5,"comment":"ok"}]`, func(body map[string]interface{}) {
		require.Equal(t, "gpt-test", body["model"])
		messages := body["messages"].([]interface{})
		require.Len(t, messages, 2)
		user := messages[1].(map[string]interface{})
		parts := user["content"].([]interface{})
		require.Equal(t, "Grade strictly", parts[0].(map[string]interface{})["text"])
		file := parts[1].(map[string]interface{})["file"].(map[string]interface{})
		require.Equal(t, "homework.pdf", file["filename"])
		require.True(t, strings.HasPrefix(file["file_data"].(string), "data:application/pdf;base64,"))
	})
	defer server.Close()

	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "test-key", Model: "gpt-test", BaseURL: server.URL, Logger: zerolog.Nop()},
		memoryFiles{"submissions/homework.pdf": []byte("%PDF-1.7")})
	require.NoError(t, err)

	result, err := grader.Grade(context.Background(), GradeInput{SubmissionID: 7, FilePath: "submissions/homework.pdf", Prompt: "Grade strictly"})
	require.NoError(t, err)
	require.Equal(t, "openai", result.Provider)
	require.Len(t, result.Tasks, 1)
	require.Equal(t, 3.0, result.Tasks[0].PointsEarned)
	require.Contains(t, result.RawResponse, "task_number")
}

func TestOpenAIGraderSurfacesAPIErrors(t *testing.T) {
	server := newTestServer(t, http.StatusTooManyRequests, "", nil)
	defer server.Close()

	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL}, memoryFiles{"a.pdf": []byte("%PDF")})
	require.NoError(t, err)

	_, err = grader.Grade(context.Background(), GradeInput{SubmissionID: 1, FilePath: "a.pdf", Prompt: "p"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "quota exceeded")
}

func TestOpenAIGraderRejectsMalformedOutput(t *testing.T) {
	server := newTestServer(t, http.StatusOK, `{"score": 10}`, nil)
	defer server.Close()

	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL}, memoryFiles{"a.pdf": []byte("%PDF")})
	require.NoError(t, err)

	_, err = grader.Grade(context.Background(), GradeInput{SubmissionID: 1, FilePath: "a.pdf", Prompt: "p"})
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestNewOpenAIGraderRequiresKey(t *testing.T) {
	_, err := NewOpenAIGrader(OpenAIConfig{}, memoryFiles{})
	require.Error(t, err)
}
