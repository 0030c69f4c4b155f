package variance

// Viewport maps normalized series coordinates onto a drawing surface whose
// y axis grows downward, such as an SVG canvas or a terminal grid.
type Viewport struct {
	Width, Height                        float64
	PadLeft, PadRight, PadTop, PadBottom float64
}

// Map converts normalized (x, y) in [0,1] into surface coordinates.
func (v Viewport) Map(x, y float64) (px, py float64) {
	innerW := v.Width - v.PadLeft - v.PadRight
	innerH := v.Height - v.PadTop - v.PadBottom
	px = v.PadLeft + x*innerW
	py = v.PadTop + (1-y)*innerH
	return px, py
}

// PlotPoint maps a series point onto the viewport.
func (v Viewport) PlotPoint(p Point) (px, py float64) {
	return v.Map(p.X, p.Y)
}

// PlotMarker maps a milestone marker onto the viewport's baseline.
func (v Viewport) PlotMarker(m Marker) (px, py float64) {
	return v.Map(m.X, 0)
}
