package trace

import (
	"context"
	"net/http"
)

// Middleware continues the caller's trace, or starts one, and echoes the
// trace id back so clients can correlate WebSocket events. Browsers cannot
// set headers on a WebSocket upgrade, so the id may also come from the
// trace_id query parameter.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := fromRequest(r)
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

func fromRequest(r *http.Request) Context {
	traceID := r.Header.Get(TraceIDKey)
	if traceID == "" {
		traceID = r.URL.Query().Get("trace_id")
	}
	if traceID == "" {
		return New()
	}
	return Context{TraceID: traceID, SpanID: newID(8), ParentSpanID: r.Header.Get(SpanIDKey)}
}

// FromMessage returns ctx carrying a child span of traceID, or of the
// existing trace when traceID is empty.
func FromMessage(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		ctx, tc := EnsureContext(ctx)
		return WithContext(ctx, NewChild(tc))
	}
	return WithContext(ctx, Context{TraceID: traceID, SpanID: newID(8)})
}
