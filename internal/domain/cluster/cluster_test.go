package cluster_test

import (
	"fmt"
	"testing"

	"github.com/cvmap/cvmap/internal/domain/cluster"
	"github.com/cvmap/cvmap/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func point(id string, lat, lon float64) model.Cvm {
	return model.Cvm{ID: id, Latitude: lat, Longitude: lon}
}

func totalCount(items []model.MapItem) int {
	total := 0
	for _, it := range items {
		switch v := it.(type) {
		case model.CvmCluster:
			total += v.Count
		case model.Cvm:
			total++
		}
	}
	return total
}

func TestClusterScenario(t *testing.T) {
	vp := model.Viewport{LatMin: 49.99, LatMax: 50.01, LonMin: 9.99, LonMax: 10.01}
	cvms := []model.Cvm{
		point("cvm-a", 50.0000, 10.0000),
		point("cvm-b", 50.0001, 10.0001),
	}

	Convey("Given two CVMs roughly ten meters apart", t, func() {
		g := cluster.New()

		Convey("When clustered at low zoom", func() {
			items := g.Cluster(cvms, vp, 3)

			Convey("Then they collapse into a single cluster of two", func() {
				So(len(items), ShouldEqual, 1)
				cl, ok := items[0].(model.CvmCluster)
				So(ok, ShouldBeTrue)
				So(cl.Count, ShouldEqual, 2)
				So(cl.Cluster, ShouldBeTrue)

				Convey("And the centroid is the arithmetic mean", func() {
					So(cl.Latitude, ShouldAlmostEqual, 50.00005, 1e-9)
					So(cl.Longitude, ShouldAlmostEqual, 10.00005, 1e-9)
				})
			})
		})

		Convey("When clustered at high zoom", func() {
			items := g.Cluster(cvms, vp, 19)

			Convey("Then both come back as singleton CVMs with exact coordinates", func() {
				So(len(items), ShouldEqual, 2)
				for _, it := range items {
					c, ok := it.(model.Cvm)
					So(ok, ShouldBeTrue)
					So(c.Cluster, ShouldBeFalse)
				}
			})
		})
	})
}

func TestClusterDeterminism(t *testing.T) {
	Convey("Given a fixed input set and viewport", t, func() {
		vp := model.Viewport{LatMin: 40, LatMax: 41, LonMin: -74, LonMax: -73}
		var cvms []model.Cvm
		for i := 0; i < 25; i++ {
			cvms = append(cvms, point(
				fmt.Sprintf("cvm-%02d", i),
				40.0+float64(i%5)*0.19+float64(i)*0.001,
				-74.0+float64(i/5)*0.19+float64(i)*0.001,
			))
		}
		g := cluster.New()

		Convey("Then repeated calls yield identical membership and centroids", func() {
			first := g.Cluster(cvms, vp, 8)
			for i := 0; i < 5; i++ {
				So(g.Cluster(cvms, vp, 8), ShouldResemble, first)
			}
		})

		Convey("Then input order does not change the result", func() {
			reversed := make([]model.Cvm, len(cvms))
			for i, c := range cvms {
				reversed[len(cvms)-1-i] = c
			}
			So(g.Cluster(reversed, vp, 8), ShouldResemble, g.Cluster(cvms, vp, 8))
		})

		Convey("Then the sum of counts equals the visible point count", func() {
			for _, zoom := range []int{0, 4, 8, 12, 16, 20} {
				items := g.Cluster(cvms, vp, zoom)
				So(totalCount(items), ShouldEqual, len(cvms))
			}
		})
	})
}

func TestCellBoundary(t *testing.T) {
	Convey("Given a grid with one-degree cells", t, func() {
		// density 360 at zoom 0 gives exactly 1.0 degree cells; a tiny
		// expectedCells keeps the requested zoom untouched.
		g := cluster.New(cluster.WithGridDensity(360), cluster.WithExpectedCells(1))
		vp := model.Viewport{LatMin: 0, LatMax: 3, LonMin: 0, LonMax: 3}

		Convey("When a point sits exactly on a cell boundary", func() {
			cvms := []model.Cvm{
				point("cvm-below", 0.999, 0.5),
				point("cvm-edge", 1.0, 0.5),
			}
			items := g.Cluster(cvms, vp, 0)

			Convey("Then floor assignment puts it in the higher-index cell", func() {
				So(len(items), ShouldEqual, 2)
				So(totalCount(items), ShouldEqual, 2)
			})
		})

		Convey("When the boundary point shares its cell with another", func() {
			cvms := []model.Cvm{
				point("cvm-edge", 1.0, 0.5),
				point("cvm-mid", 1.5, 0.5),
			}
			items := g.Cluster(cvms, vp, 0)

			Convey("Then they merge into one cluster", func() {
				So(len(items), ShouldEqual, 1)
				cl, ok := items[0].(model.CvmCluster)
				So(ok, ShouldBeTrue)
				So(cl.Count, ShouldEqual, 2)
			})
		})
	})
}

func TestClusterFiltering(t *testing.T) {
	Convey("Given points outside the viewport", t, func() {
		g := cluster.New()
		vp := model.Viewport{LatMin: 10, LatMax: 11, LonMin: 10, LonMax: 11}
		cvms := []model.Cvm{
			point("cvm-in", 10.5, 10.5),
			point("cvm-out-lat", 12.0, 10.5),
			point("cvm-out-lon", 10.5, 9.0),
		}

		Convey("Then only visible points are emitted", func() {
			items := g.Cluster(cvms, vp, 10)
			So(totalCount(items), ShouldEqual, 1)
			c, ok := items[0].(model.Cvm)
			So(ok, ShouldBeTrue)
			So(c.ID, ShouldEqual, "cvm-in")
		})
	})

	Convey("Given an empty input set", t, func() {
		g := cluster.New()
		vp := model.Viewport{LatMin: 10, LatMax: 11, LonMin: 10, LonMax: 11}
		So(len(g.Cluster(nil, vp, 10)), ShouldEqual, 0)
	})
}
