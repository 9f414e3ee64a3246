package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kingrea/countersign/internal/config"
	"github.com/kingrea/countersign/internal/field"
	"github.com/kingrea/countersign/internal/sandbox"
	"github.com/kingrea/countersign/internal/signer"
	"github.com/kingrea/countersign/internal/workflow"
)

type recordingLogger struct {
	lines []string
}

func (l *recordingLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func sampleEnvelope(t *testing.T) workflow.Envelope {
	t.Helper()
	s := workflow.NewSession("ses_1")
	for _, op := range []workflow.Operation{
		workflow.AttachDocument{Document: workflow.Document{Name: "Lease", FileRef: "file://lease.pdf", PreviewHandle: "preview_1"}},
		workflow.AddSigner{Candidate: signer.Candidate{Name: "A", Email: "a@example.com"}},
		workflow.PlaceField{Signer: "a@example.com", Type: field.TypeSignature, Page: 1},
	} {
		s = workflow.Reduce(s, op)
	}
	env, err := s.Envelope()
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	return env
}

func TestHTTPDispatchAgainstSandbox(t *testing.T) {
	sb := sandbox.NewServer(sandbox.Settings{})
	srv := httptest.NewServer(sb.Handler())
	defer srv.Close()
	d, err := NewHTTP(srv.URL + "/")
	if err != nil {
		t.Fatalf("new http: %v", err)
	}
	if err := d.Dispatch(context.Background(), sampleEnvelope(t)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	records := sb.Store().List("a@example.com")
	if len(records) != 1 {
		t.Fatalf("expected one stored envelope, got %d", len(records))
	}
	if !strings.HasPrefix(records[0].RequestID, "req_") {
		t.Fatalf("expected request id header, got %q", records[0].RequestID)
	}
}

func TestHTTPDispatchRejected(t *testing.T) {
	sb := sandbox.NewServer(sandbox.Settings{})
	sb.Store().FailNext(1, http.StatusBadGateway)
	srv := httptest.NewServer(sb.Handler())
	defer srv.Close()
	d, _ := NewHTTP(srv.URL)
	err := d.Dispatch(context.Background(), sampleEnvelope(t))
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "502 simulated failure") {
		t.Fatalf("expected server message in error, got %v", err)
	}
}

func TestHTTPDispatchHonorsContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)
	d, _ := NewHTTP(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Dispatch(ctx, sampleEnvelope(t)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewHTTPRequiresEndpoint(t *testing.T) {
	if _, err := NewHTTP("  "); err == nil {
		t.Fatalf("expected error for blank endpoint")
	}
}

func TestLogDispatcher(t *testing.T) {
	logger := &recordingLogger{}
	d := NewLog(logger)
	if err := d.Dispatch(context.Background(), sampleEnvelope(t)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(logger.lines) != 1 || !strings.Contains(logger.lines[0], `"Lease"`) {
		t.Fatalf("unexpected log lines %v", logger.lines)
	}
	if err := d.Dispatch(context.Background(), workflow.Envelope{}); err == nil {
		t.Fatalf("expected invalid envelope to fail")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Dispatch(ctx, sampleEnvelope(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestFuncAdapter(t *testing.T) {
	called := false
	var d Dispatcher = Func(func(ctx context.Context, env workflow.Envelope) error {
		called = env.SessionID == "ses_1"
		return nil
	})
	if err := d.Dispatch(context.Background(), sampleEnvelope(t)); err != nil || !called {
		t.Fatalf("expected func to be called")
	}
}

func TestNewSelectsMode(t *testing.T) {
	d, closeFn, err := New(context.Background(), config.DispatchConfig{Mode: "log"}, nil)
	if err != nil {
		t.Fatalf("new log: %v", err)
	}
	defer closeFn()
	if _, ok := d.(*Log); !ok {
		t.Fatalf("expected log dispatcher, got %T", d)
	}
	d, _, err = New(context.Background(), config.DispatchConfig{Mode: "http", Endpoint: "http://127.0.0.1:1"}, nil)
	if err != nil {
		t.Fatalf("new http: %v", err)
	}
	if _, ok := d.(*HTTP); !ok {
		t.Fatalf("expected http dispatcher, got %T", d)
	}
	if _, _, err := New(context.Background(), config.DispatchConfig{Mode: "fax"}, nil); err == nil {
		t.Fatalf("expected unknown mode to fail")
	}
}

func TestRedisQueueRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis-backed dispatch tests")
	}
	list := fmt.Sprintf("countersign:test:%d", time.Now().UnixNano())
	q, err := NewRedisQueue(context.Background(), RedisOptions{Addr: addr, List: list})
	if err != nil {
		t.Fatalf("redis queue: %v", err)
	}
	defer q.Close()
	if err := q.Dispatch(context.Background(), sampleEnvelope(t)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if n, err := q.Len(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected one queued envelope, got %d (%v)", n, err)
	}
	env, err := q.Pop(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if env.SessionID != "ses_1" || len(env.Fields) != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
