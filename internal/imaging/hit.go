package imaging

import (
	"image"
	"math"
)

// transparentAlpha is the alpha below which a pixel counts as empty.
const transparentAlpha = 10

// Box is the rendered size of an element showing an image with object-fit: contain.
type Box struct {
	Width  float64 `json:"boxWidth"`
	Height float64 `json:"boxHeight"`
}

// Hit is the outcome of a click on a displayed image.
type Hit struct {
	OnImage bool  `json:"onImage"`
	Checked bool  `json:"checked"` // false when the click could not be evaluated
	X       int   `json:"x"`
	Y       int   `json:"y"`
	Alpha   uint8 `json:"alpha"`
}

// HitTest maps the click (x, y), relative to the box, onto the natural image.
// Clicks in the letterbox or on a pixel with alpha < 10 miss the image.
// When the click cannot be evaluated it is assumed to be on the image.
func HitTest(box Box, img image.Image, x, y float64) Hit {
	if img == nil || box.Width <= 0 || box.Height <= 0 || img.Bounds().Empty() {
		return Hit{OnImage: true}
	}
	b := img.Bounds()
	nw, nh := float64(b.Dx()), float64(b.Dy())

	naturalRatio := nw / nh
	visibleRatio := box.Width / box.Height

	var renderW, renderH, left, top float64
	if naturalRatio > visibleRatio {
		renderW = box.Width
		renderH = box.Width / naturalRatio
		top = (box.Height - renderH) / 2
	} else {
		renderH = box.Height
		renderW = box.Height * naturalRatio
		left = (box.Width - renderW) / 2
	}

	if x < left || x > left+renderW || y < top || y > top+renderH {
		return Hit{Checked: true}
	}

	px := clamp(int(math.Floor((x-left)*nw/renderW)), b.Dx()-1)
	py := clamp(int(math.Floor((y-top)*nh/renderH)), b.Dy()-1)
	alpha := alphaAt(img, b.Min.X+px, b.Min.Y+py)

	return Hit{
		OnImage: alpha >= transparentAlpha,
		Checked: true,
		X:       px,
		Y:       py,
		Alpha:   alpha,
	}
}

func clamp(v, hi int) int {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
