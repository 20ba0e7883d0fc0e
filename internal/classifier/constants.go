// Package classifier talks to the image classification server.
package classifier

import "time"

// gRPC method names. Messages are google.protobuf.Struct on both sides.
const (
	ServiceName       = "classifier.v1.ImageClassifier"
	MethodLoadModel   = "/" + ServiceName + "/LoadModel"
	MethodPredict     = "/" + ServiceName + "/Predict"
	MethodUnloadModel = "/" + ServiceName + "/UnloadModel"
)

// Client configuration defaults
const (
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	DefaultPredictTimeout = 2 * time.Second
	MetadataFetchTimeout  = 10 * time.Second

	// DefaultImageSize is the Teachable Machine input edge in pixels.
	DefaultImageSize = 224
	JPEGQuality      = 85
)
