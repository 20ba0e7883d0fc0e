package camera

// Size is a frame size in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Fit returns the largest 4:3 size that fits the container. A container
// wider than 4:3 constrains the height, otherwise the width; results are
// floored to whole pixels.
func Fit(containerW, containerH int) Size {
	if containerW <= 0 || containerH <= 0 {
		return Size{}
	}
	if float64(containerW)/float64(containerH) > float64(AspectW)/float64(AspectH) {
		return Size{Width: containerH * AspectW / AspectH, Height: containerH}
	}
	return Size{Width: containerW, Height: containerW * AspectH / AspectW}
}
