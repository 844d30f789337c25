package defect

// IoU computes intersection-over-union of two axis-aligned boxes.
// Returns 0 for disjoint or degenerate boxes, 1 for identical boxes.
func IoU(a, b BoundingBox) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}

	left := maxInt(a.X, b.X)
	top := maxInt(a.Y, b.Y)
	right := minInt(a.X+a.Width, b.X+b.Width)
	bottom := minInt(a.Y+a.Height, b.Y+b.Height)

	if right <= left || bottom <= top {
		return 0
	}

	inter := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - inter

	return float64(inter) / float64(union)
}

// AverageBox returns the coordinate-wise average of two boxes.
func AverageBox(a, b BoundingBox) BoundingBox {
	return BoundingBox{
		X:      (a.X + b.X) / 2,
		Y:      (a.Y + b.Y) / 2,
		Width:  (a.Width + b.Width) / 2,
		Height: (a.Height + b.Height) / 2,
	}
}

// ClampBox clips a box to the image bounds. Boxes fully outside collapse
// to zero area.
func ClampBox(b BoundingBox, imgWidth, imgHeight int) BoundingBox {
	x := maxInt(b.X, 0)
	y := maxInt(b.Y, 0)
	right := minInt(b.X+b.Width, imgWidth)
	bottom := minInt(b.Y+b.Height, imgHeight)

	return BoundingBox{X: x, Y: y, Width: right - x, Height: bottom - y}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
