package classifier

import (
	"bytes"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// CenterSquare returns the largest centered square of r.
func CenterSquare(r image.Rectangle) image.Rectangle {
	w, h := r.Dx(), r.Dy()
	side := min(w, h)
	x0 := r.Min.X + (w-side)/2
	y0 := r.Min.Y + (h-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}

// Resize crops frame to its center square and scales it to size x size.
func Resize(frame image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), frame, CenterSquare(frame.Bounds()), draw.Src, nil)
	return dst
}

// EncodeFrame prepares a frame for the classifier as JPEG bytes.
func EncodeFrame(frame image.Image, size int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Resize(frame, size), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
