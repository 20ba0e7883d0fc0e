package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorMessage(t *testing.T) {
	err := Wrap(stderrors.New("no such device"), CodeCameraUnavailable, "camera setup").
		WithMetadata("device", "/dev/video0")

	msg := err.Error()
	for _, want := range []string{"[CAMERA_UNAVAILABLE]", "camera setup", "/dev/video0", "no such device"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(cause, CodeInternal, "inner"))

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause through AppError")
	}
	if !IsCode(err, CodeInternal) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	orig := New(CodeModelLoadFailed, "metadata unreachable").WithMetadata("url", "http://x/metadata.json")

	st := orig.GRPCStatus()
	if st.Code() != codes.Unavailable {
		t.Fatalf("grpc code = %v, want Unavailable", st.Code())
	}

	got := FromGRPCError(st.Err())
	if got.Code != CodeModelLoadFailed {
		t.Errorf("Code = %v, want %v", got.Code, CodeModelLoadFailed)
	}
	if got.Metadata["url"] != "http://x/metadata.json" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
}

func TestFromGRPCErrorFallback(t *testing.T) {
	tests := []struct {
		code codes.Code
		want Code
	}{
		{codes.Unavailable, CodeUnavailable},
		{codes.DeadlineExceeded, CodeTimeout},
		{codes.Canceled, CodeCancelled},
		{codes.InvalidArgument, CodeInvalidArgument},
		{codes.Internal, CodeInternal},
		{codes.PermissionDenied, CodeUnknown},
	}

	for _, tt := range tests {
		got := FromGRPCError(status.Error(tt.code, "x"))
		if got.Code != tt.want {
			t.Errorf("FromGRPCError(%v).Code = %v, want %v", tt.code, got.Code, tt.want)
		}
	}
}

func TestFromGRPCErrorPlain(t *testing.T) {
	got := FromGRPCError(stderrors.New("plain"))
	if got.Code != CodeUnknown {
		t.Errorf("Code = %v, want Unknown", got.Code)
	}
	if FromGRPCError(nil) != nil {
		t.Error("FromGRPCError(nil) should be nil")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{New(CodeUnavailable, "x"), true},
		{New(CodeTimeout, "x"), true},
		{New(CodeInvalidArgument, "x"), false},
		{New(CodeModelLoadFailed, "x"), false},
		{stderrors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsAcquisitionFailure(t *testing.T) {
	if !IsAcquisitionFailure(New(CodeModelLoadFailed, "x")) {
		t.Error("model load failure is an acquisition failure")
	}
	if !IsAcquisitionFailure(New(CodeCameraUnavailable, "x")) {
		t.Error("camera failure is an acquisition failure")
	}
	if IsAcquisitionFailure(New(CodePredictionFailed, "x")) {
		t.Error("prediction failure is not an acquisition failure")
	}
}

func TestParseCode(t *testing.T) {
	for c := range codeNames {
		if got := ParseCode(c.String()); got != c {
			t.Errorf("ParseCode(%q) = %v, want %v", c.String(), got, c)
		}
	}
	if ParseCode("nope") != CodeUnknown {
		t.Error("unknown names should parse to CodeUnknown")
	}
}
