//go:build windows

package camera

import (
	"errors"
	"strconv"
)

// dshow has no default device; CAMERA_DEVICE must name one.
const defaultDevice = ""

func inputArgs(device string, rate float64) ([]string, error) {
	if device == "" {
		return nil, errors.New("dshow requires a camera device name")
	}
	args := []string{"-f", "dshow"}
	if rate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(rate, 'f', -1, 64))
	}
	return append(args, "-i", "video="+device), nil
}
