package classifier

import (
	"context"
	"encoding/base64"
	"image"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/GriffinCanCode/monkey-alert/internal/errors"
	"github.com/GriffinCanCode/monkey-alert/internal/resilience"
	"github.com/GriffinCanCode/monkey-alert/internal/trace"
)

// Client loads models on the classification server and runs predictions.
type Client struct {
	conn           *grpc.ClientConn
	http           *http.Client
	breaker        *resilience.Breaker
	predictTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the client used to fetch model metadata.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithBreaker sets the circuit breaker guarding Predict.
func WithBreaker(b *resilience.Breaker) Option { return func(c *Client) { c.breaker = b } }

// WithPredictTimeout bounds each Predict call.
func WithPredictTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.predictTimeout = d
		}
	}
}

// DialOptions returns the default gRPC options: plaintext, keepalive and
// trace propagation.
func DialOptions() []grpc.DialOption {
	return []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                DefaultKeepaliveTime,
			Timeout:             DefaultKeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithUnaryInterceptor(trace.UnaryClientInterceptor()),
	}
}

// New creates a client for the server at addr. The connection is lazy.
func New(addr string, dialOpts []grpc.DialOption, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "dial classifier").WithMetadata("addr", addr)
	}

	c := &Client{
		conn:           conn,
		http:           http.DefaultClient,
		breaker:        resilience.New(resilience.PredictConfig()),
		predictTimeout: DefaultPredictTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the gRPC connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// Breaker exposes the prediction circuit breaker.
func (c *Client) Breaker() *resilience.Breaker { return c.breaker }

// Load fetches the model metadata, then asks the server to load the model.
func (c *Client) Load(ctx context.Context, modelURL, metadataURL string) (Model, error) {
	ctx, span := trace.StartSpan(ctx, "classifier_load")
	defer span.End()
	span.SetAttr("model_url", modelURL)

	meta, err := FetchMetadata(ctx, c.http, metadataURL)
	if err != nil {
		span.Fail(err)
		return nil, err
	}

	req, err := structpb.NewStruct(map[string]any{
		"model_url":    modelURL,
		"metadata_url": metadataURL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "build load request")
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, MethodLoadModel, req, resp); err != nil {
		span.Fail(err)
		return nil, apperrors.FromGRPCError(err)
	}

	id := resp.GetFields()["model_id"].GetStringValue()
	if id == "" {
		return nil, apperrors.New(apperrors.CodeModelLoadFailed, "classifier returned no model id").WithMetadata("model_url", modelURL)
	}
	total := int(resp.GetFields()["total_classes"].GetNumberValue())
	if total == 0 {
		total = len(meta.Labels)
	}

	// a new model starts with a clean prediction record
	c.breaker.Reset()
	trace.Logger(ctx).Info("model loaded", "model_id", id, "classes", total, "image_size", meta.ImageSize)
	return &remoteModel{client: c, id: id, meta: meta, total: total}, nil
}

type remoteModel struct {
	client *Client
	id     string
	meta   Metadata
	total  int
}

func (m *remoteModel) TotalClasses() int { return m.total }

func (m *remoteModel) Labels() []string { return append([]string(nil), m.meta.Labels...) }

// Predict classifies one frame. Calls are guarded by the client's breaker;
// while it is open, frames fail fast.
func (m *remoteModel) Predict(ctx context.Context, frame image.Image) ([]Prediction, error) {
	data, err := EncodeFrame(frame, m.meta.ImageSize)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodePredictionFailed, "encode frame")
	}
	req, err := structpb.NewStruct(map[string]any{
		"model_id": m.id,
		"image":    base64.StdEncoding.EncodeToString(data),
		"format":   "jpeg",
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "build predict request")
	}

	return resilience.Call(ctx, m.client.breaker, func(ctx context.Context) ([]Prediction, error) {
		ctx, cancel := context.WithTimeout(ctx, m.client.predictTimeout)
		defer cancel()

		resp := &structpb.Struct{}
		if err := m.client.conn.Invoke(ctx, MethodPredict, req, resp); err != nil {
			return nil, apperrors.FromGRPCError(err)
		}
		return m.decode(resp)
	})
}

func (m *remoteModel) decode(resp *structpb.Struct) ([]Prediction, error) {
	values := resp.GetFields()["predictions"].GetListValue().GetValues()
	preds := make([]Prediction, 0, len(values))
	for i, v := range values {
		fields := v.GetStructValue().GetFields()
		p := Prediction{
			ClassName:   fields["class_name"].GetStringValue(),
			Probability: fields["probability"].GetNumberValue(),
		}
		if p.ClassName == "" && i < len(m.meta.Labels) {
			p.ClassName = m.meta.Labels[i]
		}
		preds = append(preds, p)
	}
	if len(preds) == 0 {
		return nil, apperrors.New(apperrors.CodePredictionFailed, "classifier returned no predictions")
	}
	return preds, nil
}

func (m *remoteModel) Unload(ctx context.Context) error {
	req, err := structpb.NewStruct(map[string]any{"model_id": m.id})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "build unload request")
	}
	if err := m.client.conn.Invoke(ctx, MethodUnloadModel, req, &structpb.Struct{}); err != nil {
		return apperrors.FromGRPCError(err)
	}
	slog.Debug("model unloaded", "model_id", m.id)
	return nil
}
