// Package model contains domain models passed between layers.
package model

import (
	"math"
	"time"
)

// Kind identifies one of the closed set of karma event types.
type Kind string

// The closed set of event kinds. Anything else is rejected at append time.
const (
	KindRegistration     Kind = "registration"
	KindUpvoteReceived   Kind = "upvote_received"
	KindDownvoteReceived Kind = "downvote_received"
	KindUpvoteCast       Kind = "upvote_cast"
	KindDownvoteCast     Kind = "downvote_cast"
	KindReportCast       Kind = "report_cast"
	KindReportReceived   Kind = "report_received"
)

// Valid reports whether k belongs to the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindRegistration, KindUpvoteReceived, KindDownvoteReceived,
		KindUpvoteCast, KindDownvoteCast, KindReportCast, KindReportReceived:
		return true
	}
	return false
}

// RequiresCvm reports whether events of this kind must reference a CVM.
func (k Kind) RequiresCvm() bool {
	switch k {
	case KindUpvoteReceived, KindDownvoteReceived, KindReportReceived,
		KindUpvoteCast, KindDownvoteCast, KindReportCast:
		return true
	}
	return false
}

// IsReport reports whether events of this kind carry a report reason.
func (k Kind) IsReport() bool {
	return k == KindReportCast || k == KindReportReceived
}

// ReportReason classifies a report against a CVM.
type ReportReason string

// Report reasons mirror the recentlyReported counters.
const (
	ReasonMissing      ReportReason = "missing"
	ReasonSpam         ReportReason = "spam"
	ReasonInactive     ReportReason = "inactive"
	ReasonInaccessible ReportReason = "inaccessible"
)

// Valid reports whether r is a known report reason.
func (r ReportReason) Valid() bool {
	switch r {
	case ReasonMissing, ReasonSpam, ReasonInactive, ReasonInaccessible:
		return true
	}
	return false
}

// Event is an immutable attributed fact in the event log. Seq is assigned
// by the log on append and breaks OccurredAt ties for total ordering.
type Event struct {
	ID         string       `json:"id"`
	Seq        uint64       `json:"seq"`
	Kind       Kind         `json:"type"`
	Identity   string       `json:"identity"`
	CvmID      string       `json:"cvmId,omitempty"`
	Delta      int64        `json:"delta"`
	Reason     ReportReason `json:"reportReason,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`

	// Creates marks the report_received event that introduced its CVM.
	// Latitude/Longitude are set only on that event; the coordinates are
	// replayable from the log.
	Creates   bool    `json:"creates,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// IsCreation reports whether this is the report_received event that
// introduced its CVM. Creation events are birth records: they do not count
// as complaints against the owner or the CVM.
func (e Event) IsCreation() bool {
	return e.Kind == KindReportReceived && e.Creates
}

// Vote is the tri-state alreadyVoted personalization value.
type Vote string

const (
	VoteNone Vote = ""
	VoteUp   Vote = "upvote"
	VoteDown Vote = "downvote"
)

// ReportCounters holds the windowed recentlyReported counts per reason.
type ReportCounters struct {
	Missing      int `json:"missing"`
	Spam         int `json:"spam"`
	Inactive     int `json:"inactive"`
	Inaccessible int `json:"inaccessible"`
}

// Total returns the sum of all counters.
func (c ReportCounters) Total() int {
	return c.Missing + c.Spam + c.Inactive + c.Inaccessible
}

// Cvm is a registered vending-machine location with its derived reputation.
// Score and RecentlyReported are projections over the event log, never
// mutated directly.
type Cvm struct {
	ID               string         `json:"id"`
	Latitude         float64        `json:"latitude"`
	Longitude        float64        `json:"longitude"`
	Score            float64        `json:"score"`
	RecentlyReported ReportCounters `json:"recentlyReported"`
	AlreadyVoted     Vote           `json:"alreadyVoted,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
	Cluster          bool           `json:"cluster"`
}

// CvmCluster is a transient viewport-dependent aggregate of nearby CVMs.
// Count is always >= 2; a group of one is emitted as a plain Cvm.
type CvmCluster struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int     `json:"count"`
	Cluster   bool    `json:"cluster"`
}

// MapItem is either a Cvm or a CvmCluster in a viewport query result.
type MapItem interface {
	isMapItem()
}

func (Cvm) isMapItem()        {}
func (CvmCluster) isMapItem() {}

// IdentInfo is a contributing identity with its derived trust signals.
type IdentInfo struct {
	Identity    string    `json:"identity"`
	DisplayName string    `json:"displayName,omitempty"`
	Credibility float64   `json:"credibility"`
	Karma       int64     `json:"karma"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LeaderboardMember is the ranking projection of an identity. DisplayName
// is always populated; absent names are replaced by a placeholder so the
// raw identity never leaks through this field.
type LeaderboardMember struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Karma       int64  `json:"karma"`
}

// PageInfo describes the position of a page within a result set.
// Page numbering is 1-based.
type PageInfo struct {
	Page          int `json:"page"`
	PerPage       int `json:"perPage"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
}

// Page is the pagination envelope used by all list responses.
type Page[T any] struct {
	Content []T      `json:"content"`
	Info    PageInfo `json:"info"`
}

// NewPage builds a Page envelope. totalPages = ceil(total/perPage).
func NewPage[T any](content []T, page, perPage, total int) Page[T] {
	return Page[T]{
		Content: content,
		Info: PageInfo{
			Page:          page,
			PerPage:       perPage,
			TotalElements: total,
			TotalPages:    (total + perPage - 1) / perPage,
		},
	}
}

// Viewport is a WGS84 bounding box.
type Viewport struct {
	LatMin float64 `json:"latMin"`
	LatMax float64 `json:"latMax"`
	LonMin float64 `json:"lonMin"`
	LonMax float64 `json:"lonMax"`
}

// Valid reports whether the bounds are well formed and in range.
func (vp Viewport) Valid() bool {
	if vp.LatMin >= vp.LatMax || vp.LonMin >= vp.LonMax {
		return false
	}
	if vp.LatMin < -90 || vp.LatMax > 90 {
		return false
	}
	if vp.LonMin < -180 || vp.LonMax > 180 {
		return false
	}
	return !math.IsNaN(vp.LatMin) && !math.IsNaN(vp.LatMax) &&
		!math.IsNaN(vp.LonMin) && !math.IsNaN(vp.LonMax)
}

// Contains reports whether the point lies inside the viewport. The minimum
// edges are inclusive, the maximum edges exclusive, so adjacent viewports
// never double-count a point.
func (vp Viewport) Contains(lat, lon float64) bool {
	return lat >= vp.LatMin && lat < vp.LatMax &&
		lon >= vp.LonMin && lon < vp.LonMax
}
