package cluster

// Option applies a configuration option to the Grid.
type Option func(*Grid)

// WithGridDensity sets the number of cells per world tile edge.
func WithGridDensity(density int) Option {
	return func(g *Grid) {
		if density > 0 {
			g.gridDensity = density
		}
	}
}

// WithExpectedCells sets the minimum cell count a viewport should span
// before its requested zoom is honored as-is.
func WithExpectedCells(cells int) Option {
	return func(g *Grid) {
		if cells > 0 {
			g.expectedCells = cells
		}
	}
}

// WithMaxZoom caps the effective zoom used for cell sizing.
func WithMaxZoom(zoom int) Option {
	return func(g *Grid) {
		if zoom > 0 {
			g.maxZoom = zoom
		}
	}
}
