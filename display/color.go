package display

import (
	"image/color"
	"math"

	"git.sr.ht/~whereswaldon/sensorview/resolve"
)

// HeatmapStops are the default heatmap color stops, evenly spaced from a
// normalized value of 0 to 1.
var HeatmapStops = []color.NRGBA{
	{B: 0xff, A: 0xff},          // blue
	{G: 0x80, A: 0xff},          // green
	{R: 0xff, G: 0xff, A: 0xff}, // yellow
	{R: 0xff, A: 0xff},          // red
}

// gradient maps v onto stops. v is clamped to [0, 1] first.
func gradient(stops []color.NRGBA, v float64) color.NRGBA {
	switch len(stops) {
	case 0:
		return color.NRGBA{}
	case 1:
		return stops[0]
	}
	v = resolve.Clamp01(v)
	pos := v * float64(len(stops)-1)
	i := int(math.Floor(pos))
	if i >= len(stops)-1 {
		return stops[len(stops)-1]
	}
	return lerpColor(stops[i], stops[i+1], pos-float64(i))
}

func lerpColor(a, b color.NRGBA, t float64) color.NRGBA {
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.NRGBA{
		R: lerp(a.R, b.R),
		G: lerp(a.G, b.G),
		B: lerp(a.B, b.B),
		A: lerp(a.A, b.A),
	}
}

// seriesColors spaces chart line colors around the hue circle by the golden
// ratio so neighbouring channels stay distinguishable.
var seriesColors = func() []color.NRGBA {
	const target = 20
	out := make([]color.NRGBA, 0, target)
	for i := 0; i < target; i++ {
		hue := math.Mod(float64(i+1)*math.Phi, 1)
		out = append(out, hsv(hue, 0.6, 0.9))
	}
	return out
}()

func seriesColor(i int) color.NRGBA {
	return seriesColors[i%len(seriesColors)]
}

// hsv converts a hue in [0, 1) with saturation and value in [0, 1] to an
// opaque color.
func hsv(h, s, v float64) color.NRGBA {
	h6 := h * 6
	sector := math.Floor(h6)
	f := h6 - sector
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))
	var r, g, b float64
	switch int(sector) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return color.NRGBA{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
		A: 0xff,
	}
}
