package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/mnemo/internal/chat"
	ctxengine "github.com/flemzord/mnemo/internal/context"
	"github.com/flemzord/mnemo/internal/conversation"
	"github.com/flemzord/mnemo/internal/memory"
	"github.com/flemzord/mnemo/internal/provider"
	"github.com/flemzord/mnemo/internal/provider/providertest"
	"github.com/flemzord/mnemo/internal/security"
)

const testToken = "test-admin-token"

var errBackend = errors.New("disk on fire")

// testEnv is a gateway over in-memory stores and a scripted generator.
type testEnv struct {
	gw     *Gateway
	srv    *httptest.Server
	convs  *conversation.InMemoryStore
	facts  *memory.InMemoryStore
	memory *memory.Service
	reg    *prometheus.Registry

	mu     sync.Mutex
	events []security.AuditEvent
}

func (e *testEnv) audited() []security.AuditEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]security.AuditEvent(nil), e.events...)
}

type envOption func(*Options)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		convs: conversation.NewInMemoryStore(),
		facts: memory.NewInMemoryStore(),
		reg:   prometheus.NewRegistry(),
	}

	gen := &providertest.MockProvider{
		CompleteFunc: func(_ context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
			if strings.HasPrefix(req.Messages[0].Content, "You extract durable facts") {
				return provider.CompletionResponse{Content: "[]"}, nil
			}
			return provider.CompletionResponse{Content: "A title"}, nil
		},
		StreamFunc: providertest.Chunks(provider.TokenUsage{PromptTokens: 7, CompletionTokens: 2, TotalTokens: 9}, "Hi", " there"),
	}

	mem, err := memory.NewService(memory.ServiceConfig{Store: env.facts, Generator: gen})
	if err != nil {
		t.Fatalf("memory.NewService: %v", err)
	}
	env.memory = mem

	cfg := ctxengine.ContextConfig{RetainRecent: 4}
	compactor := ctxengine.NewCompactor(env.convs, ctxengine.NewGeneratorSummarizer(gen), nil, cfg, nil)

	svc, err := chat.NewService(chat.Config{
		Conversations: env.convs,
		Context:       compactor,
		Assembler:     ctxengine.NewContextAssembler(nil, cfg),
		Memory:        mem,
		Generator:     gen,
		SystemPrompt:  "You are helpful.",
	})
	if err != nil {
		t.Fatalf("chat.NewService: %v", err)
	}

	o := Options{
		Config:        Config{AdminToken: testToken},
		Chat:          svc,
		Facts:         mem,
		Conversations: env.convs,
		Context:       compactor,
		Gatherer:      env.reg,
		Registerer:    env.reg,
		Audit: security.NewAuditLogger(security.AuditLoggerConfig{
			OnEvent: func(ev security.AuditEvent) {
				env.mu.Lock()
				env.events = append(env.events, ev)
				env.mu.Unlock()
			},
		}),
		Version: "test",
	}
	for _, opt := range opts {
		opt(&o)
	}

	gw, err := New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.gw = gw
	env.srv = httptest.NewServer(gw.Handler())
	t.Cleanup(env.srv.Close)
	return env
}

// do sends an authenticated request. A nil body sends none; a string is
// sent as is; anything else is JSON encoded.
func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return e.doWithToken(t, method, path, body, testToken)
}

func (e *testEnv) doWithToken(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}

func wantStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	if resp.StatusCode != code {
		t.Fatalf("%s %s: status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, code)
	}
}
