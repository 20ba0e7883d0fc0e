package capture

// DefaultFrameRate is used when the configured rate is not positive.
const DefaultFrameRate = 30.0
