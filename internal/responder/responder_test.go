package responder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAI_Respond(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/responses" {
			t.Errorf("path = %s, want /responses", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":"Hello "},{"type":"output_text","text":"there"}]}]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(Config{APIKey: "sk-test", BaseURL: srv.URL + "/"})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}

	text, err := o.Respond(context.Background(), "hi", 300)
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q, want %q", text, "Hello there")
	}
	if got.Model != defaultOpenAIModel || got.Input != "hi" || got.MaxOutputTokens != 300 {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAI_OutputTextShortcut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output_text":"direct"}`))
	}))
	defer srv.Close()

	o, _ := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL})
	text, err := o.Respond(context.Background(), "hi", 10)
	if err != nil || text != "direct" {
		t.Errorf("Respond() = %q, %v", text, err)
	}
}

func TestOpenAI_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	o, _ := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL})
	if _, err := o.Respond(context.Background(), "hi", 10); err == nil {
		t.Error("Respond() should fail on an API error")
	}
}

func TestOpenAI_CircuitOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	o, _ := NewOpenAI(Config{
		APIKey:             "k",
		BaseURL:            srv.URL,
		BreakerMaxFailures: 2,
		BreakerTimeout:     time.Minute,
	})

	for i := 0; i < 2; i++ {
		if _, err := o.Respond(context.Background(), "hi", 10); err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: error = %v, want upstream failure", i+1, err)
		}
	}

	if _, err := o.Respond(context.Background(), "hi", 10); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("third call error = %v, want ErrCircuitOpen", err)
	}
	if hits.Load() != 2 {
		t.Errorf("upstream hits = %d, want 2", hits.Load())
	}
}

func TestOpenAI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	o, _ := NewOpenAI(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if _, err := o.Respond(context.Background(), "hi", 10); err == nil {
		t.Error("Respond() should time out")
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	if _, err := NewOpenAI(Config{}); err == nil {
		t.Error("NewOpenAI() without a key should fail")
	}
}

func TestNew_Providers(t *testing.T) {
	r, err := New(context.Background(), Config{Provider: "echo"})
	if err != nil {
		t.Fatalf("New(echo) error = %v", err)
	}
	if text, _ := r.Respond(context.Background(), "ping", 5); text != "ping" {
		t.Errorf("echo text = %q", text)
	}

	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Error("New() should reject an unknown provider")
	}
}

func TestEcho_EmptyMessage(t *testing.T) {
	if _, err := (Echo{}).Respond(context.Background(), "", 5); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("error = %v, want ErrEmptyMessage", err)
	}
}

func TestInstrumented_PassesThrough(t *testing.T) {
	r := Instrument(Echo{}, "echo")
	text, err := r.Respond(context.Background(), "hello", 5)
	if err != nil || text != "hello" {
		t.Errorf("Respond() = %q, %v", text, err)
	}
}
