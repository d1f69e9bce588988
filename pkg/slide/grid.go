package slide

// TileSize is the side length of the fixed-size tiles served by the remote
// image servers. All grid math floor-divides against this constant.
const TileSize = 256

// SubTile is one server-native grid cell covering part of a super-window.
//
// Col and Row index the cell in the slide's tile grid at the current zoom.
// Region is the cell's true pixel extent: edge cells are clipped to the
// slide bounds and may be smaller than TileSize on the right and bottom.
// OffsetX and OffsetY locate the cell inside the super-window and are
// always multiples of TileSize.
type SubTile struct {
	Col, Row         int
	OffsetX, OffsetY int
	Region           Region
}

// SuperWindow is the minimal grid-aligned rectangle enclosing a requested
// region, together with the margins separating the two and the list of
// grid cells covering it.
type SuperWindow struct {
	X, Y int
	W, H int

	Left, Top, Right, Bottom int

	Cells []SubTile
}

// Plan computes the grid-aligned super-window covering region r and
// enumerates its tile cells. slideW and slideH bound the slide at the
// current zoom; cells are clipped against them and cells lying wholly
// outside the slide are dropped.
//
// A request edge that already sits on the grid gets a zero margin on that
// side. The naive formula T - (edge mod T) would instead yield T there and
// plan a spurious extra row or column of tiles.
func Plan(r Region, slideW, slideH int) SuperWindow {
	left := r.X % TileSize
	top := r.Y % TileSize

	right := 0
	if m := (r.X + r.W) % TileSize; m != 0 {
		right = TileSize - m
	}
	bottom := 0
	if m := (r.Y + r.H) % TileSize; m != 0 {
		bottom = TileSize - m
	}

	sw := SuperWindow{
		X: r.X - left,
		Y: r.Y - top,
		W: r.W + left + right,
		H: r.H + top + bottom,

		Left:   left,
		Top:    top,
		Right:  right,
		Bottom: bottom,
	}

	for y := 0; y < sw.H; y += TileSize {
		for x := 0; x < sw.W; x += TileSize {
			absX := sw.X + x
			absY := sw.Y + y

			w := TileSize
			if absX+w > slideW {
				w = slideW - absX
			}
			h := TileSize
			if absY+h > slideH {
				h = slideH - absY
			}
			if w <= 0 || h <= 0 {
				continue
			}

			sw.Cells = append(sw.Cells, SubTile{
				Col:     absX / TileSize,
				Row:     absY / TileSize,
				OffsetX: x,
				OffsetY: y,
				Region:  Region{X: absX, Y: absY, W: w, H: h},
			})
		}
	}

	return sw
}

// TilesPerRow is the number of tile columns needed to cover a slide of the
// given width at the current zoom.
func TilesPerRow(slideW int) int {
	return (slideW + TileSize - 1) / TileSize
}

// TileIndex linearizes a (col, row) cell into the index used by servers
// that address tiles by a single number.
func TileIndex(col, row, slideW int) int {
	return col + row*TilesPerRow(slideW)
}
