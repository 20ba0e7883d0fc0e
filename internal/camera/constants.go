package camera

import "time"

const (
	AspectW = 4
	AspectH = 3

	// SetupTimeout bounds the wait for the first frame.
	SetupTimeout = 10 * time.Second
	StopTimeout  = 2 * time.Second

	MaxFrameBytes = 8 << 20
	MJPEGQuality  = 5 // ffmpeg -q:v, 2 (best) .. 31
)
