package clip

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const ImageSize = 224

var (
	ClipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	ClipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// Preprocess turns img into normalized CHW pixel values for the vision encoder.
func Preprocess(img image.Image) []float32 {
	b := img.Bounds()

	// drawings usually come from a transparent canvas
	canvas := imaging.New(b.Dx(), b.Dy(), color.White)
	flat := imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	flat = imaging.Fill(flat, ImageSize, ImageSize, imaging.Center, imaging.CatmullRom)

	out := make([]float32, 3*ImageSize*ImageSize)
	rBase := 0
	gBase := ImageSize * ImageSize
	bBase := 2 * ImageSize * ImageSize

	for y := range ImageSize {
		for x := range ImageSize {
			i := flat.PixOffset(x, y)
			fr := float32(flat.Pix[i]) / 255.0
			fg := float32(flat.Pix[i+1]) / 255.0
			fb := float32(flat.Pix[i+2]) / 255.0

			out[rBase] = (fr - ClipMean[0]) / ClipStd[0]
			out[gBase] = (fg - ClipMean[1]) / ClipStd[1]
			out[bBase] = (fb - ClipMean[2]) / ClipStd[2]

			rBase++
			gBase++
			bBase++
		}
	}
	return out
}
