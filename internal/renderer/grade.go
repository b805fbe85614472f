// Package renderer rasterises timeline frames into RGBA buffers.
package renderer

import "image"

// Colour grade applied to every scene image.
const (
	Brightness = 1.05
	Contrast   = 1.1
)

// gradeLUT maps an 8-bit channel through brightness then contrast.
var gradeLUT = buildGradeLUT(Brightness, Contrast)

func buildGradeLUT(brightness, contrast float64) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		c := float64(i) / 255 * brightness
		c = (c-0.5)*contrast + 0.5
		lut[i] = to8(c)
	}
	return lut
}

func to8(c float64) uint8 {
	switch {
	case c <= 0:
		return 0
	case c >= 1:
		return 255
	}
	return uint8(c*255 + 0.5)
}

// Grade applies the colour grade in place. It runs once per source image,
// not per frame. Translucent pixels are un-premultiplied around the lookup.
func Grade(img *image.RGBA) {
	pix := img.Pix
	for y := 0; y < img.Rect.Dy(); y++ {
		row := pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			a := row[i+3]
			switch a {
			case 0:
				continue
			case 255:
				row[i] = gradeLUT[row[i]]
				row[i+1] = gradeLUT[row[i+1]]
				row[i+2] = gradeLUT[row[i+2]]
			default:
				for c := 0; c < 3; c++ {
					straight := min(uint32(row[i+c])*255/uint32(a), 255)
					row[i+c] = uint8(uint32(gradeLUT[straight]) * uint32(a) / 255)
				}
			}
		}
	}
}
