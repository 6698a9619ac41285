// Package cluster groups visible CVMs into viewport-dependent clusters.
//
// The algorithm is a lat/lon grid: cell edges shrink proportionally to
// 2^-zoom, points are assigned to cells by flooring their offset from the
// viewport's minimum corner (boundary points land in the higher-index
// cell), and cells with two or more members collapse into a cluster at the
// arithmetic-mean centroid. Cells with a single member pass the CVM
// through untouched.
package cluster

import (
	"math"
	"sort"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// Default grid configuration constants.
const (
	defaultGridDensity   = 16 // cells per world tile edge at any zoom
	defaultExpectedCells = 160
	defaultMaxZoom       = 22
	worldDegrees         = 360.0
)

// Grid clusters points for a viewport at a zoom level. Results are
// deterministic: same input set and viewport produce identical membership
// and centroids across calls.
type Grid struct {
	gridDensity   int
	expectedCells int
	maxZoom       int
}

// New creates a grid clusterer with default configuration.
func New(opts ...Option) *Grid {
	g := &Grid{
		gridDensity:   defaultGridDensity,
		expectedCells: defaultExpectedCells,
		maxZoom:       defaultMaxZoom,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

type cellKey struct {
	lat int64
	lon int64
}

type cell struct {
	key     cellKey
	members []model.Cvm
	sumLat  float64
	sumLon  float64
}

// Cluster groups the given CVMs for the viewport and zoom. Points outside
// the viewport are ignored; the sum of emitted counts equals the number of
// input points inside it.
func (g *Grid) Cluster(cvms []model.Cvm, vp model.Viewport, zoom int) []model.MapItem {
	cellDeg := g.cellSize(vp, zoom)

	// Stable member order regardless of caller ordering.
	sorted := make([]model.Cvm, len(cvms))
	copy(sorted, cvms)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	cells := make(map[cellKey]*cell)
	for _, c := range sorted {
		if !vp.Contains(c.Latitude, c.Longitude) {
			continue
		}
		key := cellKey{
			lat: int64(math.Floor((c.Latitude - vp.LatMin) / cellDeg)),
			lon: int64(math.Floor((c.Longitude - vp.LonMin) / cellDeg)),
		}
		u, ok := cells[key]
		if !ok {
			u = &cell{key: key}
			cells[key] = u
		}
		u.members = append(u.members, c)
		u.sumLat += c.Latitude
		u.sumLon += c.Longitude
	}

	ordered := make([]*cell, 0, len(cells))
	for _, u := range cells {
		ordered = append(ordered, u)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].key.lat != ordered[j].key.lat {
			return ordered[i].key.lat < ordered[j].key.lat
		}
		return ordered[i].key.lon < ordered[j].key.lon
	})

	items := make([]model.MapItem, 0, len(ordered))
	for _, u := range ordered {
		if n := len(u.members); n >= 2 {
			items = append(items, model.CvmCluster{
				Latitude:  u.sumLat / float64(n),
				Longitude: u.sumLon / float64(n),
				Count:     n,
				Cluster:   true,
			})
			continue
		}
		items = append(items, u.members[0])
	}
	return items
}

// cellSize returns the cell edge in degrees for the viewport and zoom.
// The edge halves per zoom level; small viewports raise the effective zoom
// until they span at least expectedCells cells so clusters split when the
// client zooms into a dense area.
func (g *Grid) cellSize(vp model.Viewport, zoom int) float64 {
	if zoom < 0 {
		zoom = 0
	}
	vpArea := viewportArea(vp)
	for ; zoom < g.maxZoom; zoom++ {
		edgeRad := g.edgeDegrees(zoom) * math.Pi / 180
		if vpArea/(edgeRad*edgeRad) >= float64(g.expectedCells) {
			break
		}
	}
	return g.edgeDegrees(zoom)
}

func (g *Grid) edgeDegrees(zoom int) float64 {
	return worldDegrees / (float64(g.gridDensity) * math.Pow(2, float64(zoom)))
}

// viewportArea returns the viewport's solid angle in steradians.
func viewportArea(vp model.Viewport) float64 {
	minLL := s2.LatLngFromDegrees(vp.LatMin, vp.LonMin)
	maxLL := s2.LatLngFromDegrees(vp.LatMax, vp.LonMax)

	rect := s2.Rect{
		Lat: r1.Interval{Lo: minLL.Lat.Radians(), Hi: maxLL.Lat.Radians()},
		Lng: s1.Interval{Lo: minLL.Lng.Radians(), Hi: maxLL.Lng.Radians()},
	}
	return rect.Area()
}
