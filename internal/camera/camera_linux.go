//go:build linux

package camera

import "strconv"

const defaultDevice = "/dev/video0"

func inputArgs(device string, rate float64) ([]string, error) {
	args := []string{"-f", "v4l2"}
	if rate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(rate, 'f', -1, 64))
	}
	return append(args, "-i", device), nil
}
