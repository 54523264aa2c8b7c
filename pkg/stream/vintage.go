package stream

import (
	"image"
	"image/draw"
)

const (
	// Weights of the sepia image and the grain in the final blend.
	sepiaWeight = 0.9
	grainWeight = 0.1
	// Standard deviation of the per-channel grain.
	grainStdDev = 10
)

// Noise yields samples of a standard normal distribution.
type Noise func() float64

// Vintage returns a sepia-toned copy of img with film grain. The input is
// never modified. For each pixel the RGB channels are mapped through the
// sepia matrix, clamped to 0..255, then blended with Gaussian noise of
// standard deviation 10 at weights 0.9 and 0.1.
func Vintage(img image.Image, noise Noise) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	pix := out.Pix
	for y := 0; y < b.Dy(); y++ {
		row := pix[y*out.Stride : y*out.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			r, g, bl := float64(row[i]), float64(row[i+1]), float64(row[i+2])

			sr := clamp(0.393*r + 0.769*g + 0.189*bl)
			sg := clamp(0.349*r + 0.686*g + 0.168*bl)
			sb := clamp(0.272*r + 0.534*g + 0.131*bl)

			row[i] = uint8(clamp(sepiaWeight*sr + grainWeight*grainStdDev*noise()))
			row[i+1] = uint8(clamp(sepiaWeight*sg + grainWeight*grainStdDev*noise()))
			row[i+2] = uint8(clamp(sepiaWeight*sb + grainWeight*grainStdDev*noise()))
		}
	}
	return out
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return v
	}
}
