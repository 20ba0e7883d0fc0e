//go:build !linux && !darwin && !windows

package camera

import (
	"fmt"
	"runtime"
)

const defaultDevice = ""

func inputArgs(string, float64) ([]string, error) {
	return nil, fmt.Errorf("camera capture not supported on %s", runtime.GOOS)
}
