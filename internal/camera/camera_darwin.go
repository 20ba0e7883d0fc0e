//go:build darwin

package camera

import "strconv"

// avfoundation device index
const defaultDevice = "0"

func inputArgs(device string, rate float64) ([]string, error) {
	args := []string{"-f", "avfoundation"}
	if rate > 0 {
		args = append(args, "-framerate", strconv.FormatFloat(rate, 'f', -1, 64))
	}
	return append(args, "-i", device+":none"), nil
}
