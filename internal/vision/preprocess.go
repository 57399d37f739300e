package vision

import (
	"image"
	"image/draw"
)

var (
	detMean, detStd = [3]float32{127.5, 127.5, 127.5}, [3]float32{128, 128, 128}
	embMean, embStd = [3]float32{127.5, 127.5, 127.5}, [3]float32{127.5, 127.5, 127.5}
)

// toCHW resizes img to size x size and lays it out planar RGB, each channel
// normalized as (v - mean) / std.
func toCHW(img image.Image, size int, mean, std [3]float32) []float32 {
	rgba := resize(img, size, size)
	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := rgba.Pix[y*rgba.Stride+x*4:]
			i := y*size + x
			data[i] = (float32(p[0]) - mean[0]) / std[0]
			data[plane+i] = (float32(p[1]) - mean[1]) / std[1]
			data[2*plane+i] = (float32(p[2]) - mean[2]) / std[2]
		}
	}
	return data
}

// resize is nearest-neighbour.
func resize(img image.Image, w, h int) *image.RGBA {
	b := img.Bounds()
	src := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(src, src.Bounds(), img, b.Min, draw.Src)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}
	for y := 0; y < h; y++ {
		sy := y * b.Dy() / h
		for x := 0; x < w; x++ {
			sx := x * b.Dx() / w
			copy(dst.Pix[y*dst.Stride+x*4:y*dst.Stride+x*4+4], src.Pix[sy*src.Stride+sx*4:])
		}
	}
	return dst
}

// cropFace cuts box out of img with 10% padding per side, clamped to the
// image. It returns nil for an empty box.
func cropFace(img image.Image, box Box) image.Image {
	b := img.Bounds()
	x1, y1, x2, y2 := int(box[0])+b.Min.X, int(box[1])+b.Min.Y, int(box[2])+b.Min.X, int(box[3])+b.Min.Y
	r := image.Rect(x1, y1, x2, y2).Intersect(b)
	if r.Empty() {
		return nil
	}
	padW, padH := r.Dx()/10, r.Dy()/10
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(b)

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}
