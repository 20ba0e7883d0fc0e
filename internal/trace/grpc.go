package trace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// UnaryClientInterceptor tags outgoing classifier calls with the caller's
// trace and session ids and logs each call as a span.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx, span := StartSpan(ctx, "grpc")
		span.SetAttr("method", method)
		defer span.End()

		err := invoker(outgoing(ctx), method, req, reply, cc, opts...)
		if err != nil {
			span.SetAttr("code", status.Code(err).String())
			span.Fail(err)
		}
		return err
	}
}

// outgoing copies the ids in ctx into outgoing gRPC metadata.
func outgoing(ctx context.Context) context.Context {
	tc, _ := FromContext(ctx)
	kv := []string{TraceIDKey, tc.TraceID, SpanIDKey, tc.SpanID}
	if tc.ParentSpanID != "" {
		kv = append(kv, ParentSpanIDKey, tc.ParentSpanID)
	}
	if id := SessionID(ctx); id != "" {
		kv = append(kv, SessionIDKey, id)
	}

	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		return metadata.NewOutgoingContext(ctx, metadata.Pairs(kv...))
	}
	md = md.Copy()
	for i := 0; i < len(kv); i += 2 {
		md.Set(kv[i], kv[i+1])
	}
	return metadata.NewOutgoingContext(ctx, md)
}
