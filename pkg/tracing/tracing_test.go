package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingProvider() (*Provider, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewProvider(tp, "covrun-test"), sr
}

func TestHTTPMiddleware(t *testing.T) {
	p, sr := recordingProvider()
	h := HTTPMiddleware(p, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/instrument", nil))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "POST /v1/instrument" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", span.Status())
	}
	found := false
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key("http.status_code") && kv.Value.AsInt64() == 500 {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v", span.Attributes())
	}
}

type discardLogger struct{}

func (discardLogger) Info(string, ...map[string]interface{}) {}

func TestDisabledTracer(t *testing.T) {
	p, err := InitTracer(context.Background(), Config{ServiceName: "covrun"}, discardLogger{})
	if err != nil {
		t.Fatal(err)
	}
	if p.Tracer() == nil {
		t.Error("nil tracer")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestHTTPMiddlewareContinuesTrace(t *testing.T) {
	p, sr := recordingProvider()
	h := HTTPMiddleware(p, func(*http.Request) string { return "/v1/history/{id}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/v1/history/42", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), req)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	if got := spans[0].Name(); got != "GET /v1/history/{id}" {
		t.Errorf("span name = %q", got)
	}
	if got := spans[0].SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the propagated one", got)
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("200 response marked as error")
	}
}
