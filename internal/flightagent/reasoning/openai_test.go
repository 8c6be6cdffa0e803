package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/autopeer-io/flightpeer/internal/flightagent/core"
)

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "qwen3-vl-plus",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "` + "```json\\n{\\\"commands\\\":[{\\\"action\\\":\\\"takeoff\\\"}]}\\n```" + `"}
  }]
}`

func TestOpenAIReasoner(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	r := NewOpenAIReasoner(OpenAIConfig{
		APIKey:         "sk-test",
		BaseURL:        srv.URL,
		Model:          "qwen3-vl-plus",
		EnableThinking: true,
		ThinkingBudget: 1024,
		DefaultSpeed:   30,
	})

	reply, err := r.Reason(context.Background(), core.ReasonRequest{
		Frame:       core.Frame{Data: []byte{0xff, 0xd8}, MIMEType: "image/jpeg"},
		Instruction: "take off",
		History:     &core.Summary{Cycle: 1},
	})
	if err != nil {
		t.Fatalf("Reason() error = %v", err)
	}
	if !strings.Contains(reply, `"takeoff"`) {
		t.Errorf("reply = %q", reply)
	}

	if body["model"] != "qwen3-vl-plus" || body["enable_thinking"] != true || body["thinking_budget"] != float64(1024) {
		t.Errorf("request body = %v", body)
	}
	raw, _ := json.Marshal(body["messages"])
	for _, want := range []string{"data:image/jpeg;base64,", "Command: take off", "Follow-up call 1"} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("messages missing %q: %s", want, raw)
		}
	}
}

func TestOpenAIReasonerClassifiesStatus(t *testing.T) {
	tests := []struct {
		status    int
		permanent bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusBadRequest, true},
		{http.StatusTooManyRequests, false},
		{http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"error"}}`)
			}))
			defer srv.Close()

			r := NewOpenAIReasoner(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"})
			_, err := r.Reason(context.Background(), core.ReasonRequest{Frame: core.Frame{Data: []byte{1}}, Instruction: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("permanent = %v, want %v (%v)", IsPermanent(err), tt.permanent, err)
			}
		})
	}
}

func TestOpenAIReasonerRequiresFrame(t *testing.T) {
	r := NewOpenAIReasoner(OpenAIConfig{APIKey: "k", Model: "m"})
	_, err := r.Reason(context.Background(), core.ReasonRequest{Instruction: "x"})
	if !IsPermanent(err) || errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want permanent", err)
	}
}

func TestPrompts(t *testing.T) {
	sys := SystemPrompt(30)
	for _, want := range []string{"takeoff", "rotate_ccw", "1 to 500 cm", "30 cm/s", "goal_reached"} {
		if !strings.Contains(sys, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}

	if got := UserPrompt(core.ReasonRequest{Instruction: "land"}); got != "land" {
		t.Errorf("plain prompt = %q", got)
	}
	got := UserPrompt(core.ReasonRequest{Instruction: "land", Correction: "commands is required"})
	if !strings.HasPrefix(got, "Context: ") || !strings.Contains(got, "commands is required") || !strings.HasSuffix(got, "Command: land") {
		t.Errorf("corrective prompt = %q", got)
	}
}
