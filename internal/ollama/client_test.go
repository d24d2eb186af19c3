// ABOUTME: Tests for the Ollama client against an httptest server
// ABOUTME: Covers streamed chat accumulation, model listing with fallback, and error mapping

package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChat_AccumulatesStream(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, part := range []string{"```json\n{\"command\": ", "\"get_actors_in_level\", ", "\"parameters\": {}}\n```"} {
			b, _ := json.Marshal(map[string]any{"message": map[string]string{"role": "assistant", "content": part}, "done": false})
			fmt.Fprintf(w, "%s\n", b)
		}
		fmt.Fprintln(w, `{"message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil, nil)
	out, err := c.Chat(context.Background(), "cogito:8b", "system prompt", "list actors")
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"command\": \"get_actors_in_level\", \"parameters\": {}}\n```", out)

	assert.Equal(t, "cogito:8b", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "list actors", got.Messages[1].Content)
}

func TestChat_StreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"error":"model 'nope' not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, nil).Chat(context.Background(), "nope", "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model 'nope' not found")
}

func TestChat_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found"}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, nil).Chat(context.Background(), "x", "", "hi")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "model not found", se.Message)
}

func TestChat_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = New("http://"+addr, nil, nil).Chat(context.Background(), "x", "", "hi")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestChat_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL, nil, nil).Chat(ctx, "x", "", "hi")
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[{"name":"cogito:8b","size":1},{"model":"llama3:latest"},{"size":2}]}`)
	}))
	defer srv.Close()

	list, err := New(srv.URL, nil, nil).ListModels(context.Background())
	require.NoError(t, err)
	assert.False(t, list.Degraded)
	assert.Equal(t, []string{"cogito:8b", "llama3:latest"}, list.Models)
	assert.Contains(t, list.Raw, `"cogito:8b"`)
}

func TestParseModels_Fallback(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"python repr", `models=[Model(model='cogito:8b', size=1), Model(model='qwen2:7b')]`, []string{"cogito:8b", "qwen2:7b"}},
		{"json without models key", `{"items":[{"name":"mistral"}]}`, []string{"mistral"}},
		{"yaml-ish", "- name: phi3\n- name: gemma:2b\n", []string{"phi3", "gemma:2b"}},
		{"nothing", "<html>oops</html>", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := parseModels([]byte(tt.body))
			assert.True(t, list.Degraded)
			assert.Equal(t, tt.body, list.Raw)
			assert.Equal(t, tt.want, list.Models)
		})
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, nil, nil).Ping(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	var se *StatusError
	assert.True(t, errors.As(New(down.URL, nil, nil).Ping(context.Background()), &se))
}
