package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	service "github.com/cvmap/cvmap/internal/app"
	"github.com/cvmap/cvmap/internal/domain/model"
	"github.com/cvmap/cvmap/internal/domain/reputation"
	"github.com/cvmap/cvmap/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func newService(t *testing.T, opts ...service.Option) *service.Service {
	t.Helper()
	opts = append([]service.Option{service.WithWorkerCount(2)}, opts...)
	s := service.New(opts...)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestRegisterAndIdentity(t *testing.T) {
	ctx := context.Background()

	Convey("Given a running service", t, func() {
		s := newService(t)

		Convey("When an identity registers with a display name", func() {
			info, err := s.Register(ctx, "berlin scout")
			So(err, ShouldBeNil)

			Convey("Then the projection starts at base credibility and zero karma", func() {
				So(info.Identity, ShouldNotBeEmpty)
				So(info.DisplayName, ShouldEqual, "berlin scout")
				So(info.Credibility, ShouldEqual, 50.0)
				So(info.Karma, ShouldEqual, int64(0))
			})

			Convey("Then Identity returns the same projection", func() {
				got, err := s.Identity(ctx, info.Identity)
				So(err, ShouldBeNil)
				So(got.Identity, ShouldEqual, info.Identity)
			})

			Convey("Then the identity appears on the leaderboard", func() {
				page, err := s.Leaderboard(ctx, 1, 10)
				So(err, ShouldBeNil)
				So(len(page.Content), ShouldEqual, 1)
				So(page.Content[0].DisplayName, ShouldEqual, "berlin scout")
			})
		})

		Convey("When an identity registers without a display name", func() {
			info, err := s.Register(ctx, "")
			So(err, ShouldBeNil)

			Convey("Then the leaderboard shows the placeholder, never the identity", func() {
				page, err := s.Leaderboard(ctx, 1, 10)
				So(err, ShouldBeNil)
				So(len(page.Content), ShouldEqual, 1)
				So(page.Content[0].DisplayName, ShouldEqual, "anonymous scout")
				So(page.Content[0].DisplayName, ShouldNotEqual, info.Identity)
			})
		})

		Convey("Then unknown identities are not found", func() {
			_, err := s.Identity(ctx, "ghost")
			So(err, ShouldEqual, service.ErrNotFound)
		})
	})
}

func TestReportsAndVotes(t *testing.T) {
	ctx := context.Background()

	Convey("Given a reporter and a voter", t, func() {
		s := newService(t)
		reporter, err := s.Register(ctx, "reporter")
		So(err, ShouldBeNil)
		voter, err := s.Register(ctx, "voter")
		So(err, ShouldBeNil)

		Convey("When the reporter reports an unknown location", func() {
			cvm, err := s.SubmitReport(ctx, reporter.Identity, 52.52, 13.405, model.ReasonMissing)
			So(err, ShouldBeNil)

			Convey("Then a CVM is registered at those coordinates", func() {
				So(cvm.ID, ShouldNotBeEmpty)
				So(cvm.Latitude, ShouldEqual, 52.52)
				So(cvm.Longitude, ShouldEqual, 13.405)
				So(cvm.Score, ShouldEqual, 0.0)
			})

			Convey("Then the creating report does not count as a complaint", func() {
				So(cvm.RecentlyReported.Total(), ShouldEqual, 0)
				info, err := s.Identity(ctx, reporter.Identity)
				So(err, ShouldBeNil)
				So(info.Credibility, ShouldEqual, 50.0)
			})

			Convey("Then the reporter earns the report_cast karma", func() {
				info, err := s.Identity(ctx, reporter.Identity)
				So(err, ShouldBeNil)
				So(info.Karma, ShouldEqual, int64(1))
			})

			Convey("When a second report hits the same coordinates", func() {
				again, err := s.SubmitReport(ctx, voter.Identity, 52.52, 13.405, model.ReasonSpam)
				So(err, ShouldBeNil)

				Convey("Then it lands on the existing CVM as a complaint", func() {
					So(again.ID, ShouldEqual, cvm.ID)
					So(again.RecentlyReported.Spam, ShouldEqual, 1)
				})
			})

			Convey("When the voter upvotes the CVM", func() {
				voted, err := s.CastVote(ctx, voter.Identity, cvm.ID, model.VoteUp)
				So(err, ShouldBeNil)

				Convey("Then the score rises by the upvote weight", func() {
					So(voted.Score, ShouldEqual, 1.0)
				})

				Convey("Then the owner receives the upvote karma", func() {
					info, err := s.Identity(ctx, reporter.Identity)
					So(err, ShouldBeNil)
					So(info.Karma, ShouldEqual, int64(3)) // report_cast +1, upvote_received +2
					So(info.Credibility, ShouldEqual, 100.0)
				})

				Convey("Then a repeat vote is still cooling down", func() {
					_, err := s.CastVote(ctx, voter.Identity, cvm.ID, model.VoteDown)
					So(err, ShouldEqual, service.ErrDuplicateVote)
				})
			})

			Convey("When the reporter reports the null island origin", func() {
				origin, err := s.SubmitReport(ctx, reporter.Identity, 0, 0, model.ReasonMissing)
				So(err, ShouldBeNil)

				Convey("Then a CVM is registered at (0,0)", func() {
					So(origin.ID, ShouldNotBeEmpty)
					So(origin.ID, ShouldNotEqual, cvm.ID)
					So(origin.Latitude, ShouldEqual, 0.0)
					So(origin.Longitude, ShouldEqual, 0.0)
					So(origin.RecentlyReported.Total(), ShouldEqual, 0)
				})
			})

			Convey("Then voting on an unknown CVM fails", func() {
				_, err := s.CastVote(ctx, voter.Identity, "no-such-cvm", model.VoteUp)
				So(err, ShouldEqual, service.ErrNotFound)
			})

			Convey("Then an invalid direction is rejected", func() {
				_, err := s.CastVote(ctx, voter.Identity, cvm.ID, model.Vote("sideways"))
				So(err, ShouldEqual, service.ErrInvalidDirection)
			})
		})

		Convey("Then an invalid reason is rejected", func() {
			_, err := s.SubmitReport(ctx, reporter.Identity, 1, 1, model.ReportReason("ugly"))
			So(err, ShouldEqual, service.ErrInvalidReason)
		})

		Convey("Then out-of-range coordinates are rejected", func() {
			_, err := s.SubmitReport(ctx, reporter.Identity, 91, 0, model.ReasonMissing)
			So(err, ShouldEqual, service.ErrInvalidCoordinates)
		})

		Convey("Then an unregistered actor cannot mutate", func() {
			_, err := s.SubmitReport(ctx, "ghost", 1, 1, model.ReasonMissing)
			So(err, ShouldEqual, service.ErrUnknownIdentity)
			_, err = s.CastVote(ctx, "ghost", "whatever", model.VoteUp)
			So(err, ShouldEqual, service.ErrUnknownIdentity)
		})
	})
}

func TestCredibilityGate(t *testing.T) {
	ctx := context.Background()

	Convey("Given an owner whose CVM keeps getting downvoted", t, func() {
		s := newService(t)
		owner, err := s.Register(ctx, "owner")
		So(err, ShouldBeNil)
		critic, err := s.Register(ctx, "critic")
		So(err, ShouldBeNil)

		cvm, err := s.SubmitReport(ctx, owner.Identity, 48.8566, 2.3522, model.ReasonInactive)
		So(err, ShouldBeNil)
		_, err = s.CastVote(ctx, critic.Identity, cvm.ID, model.VoteDown)
		So(err, ShouldBeNil)

		Convey("Then the owner's credibility collapses", func() {
			info, err := s.Identity(ctx, owner.Identity)
			So(err, ShouldBeNil)
			So(info.Credibility, ShouldEqual, 0.0)
		})

		Convey("Then the owner can no longer vote or report", func() {
			_, err := s.CastVote(ctx, owner.Identity, cvm.ID, model.VoteUp)
			So(err, ShouldEqual, service.ErrInsufficientCredibility)
			_, err = s.SubmitReport(ctx, owner.Identity, 1, 1, model.ReasonMissing)
			So(err, ShouldEqual, service.ErrInsufficientCredibility)
		})
	})
}

func TestMapView(t *testing.T) {
	ctx := context.Background()

	Convey("Given two nearby CVMs and one far away", t, func() {
		s := newService(t)
		scout, err := s.Register(ctx, "scout")
		So(err, ShouldBeNil)
		voter, err := s.Register(ctx, "voter")
		So(err, ShouldBeNil)

		near1, err := s.SubmitReport(ctx, scout.Identity, 50.0000, 10.0000, model.ReasonMissing)
		So(err, ShouldBeNil)
		_, err = s.SubmitReport(ctx, scout.Identity, 50.0001, 10.0001, model.ReasonMissing)
		So(err, ShouldBeNil)
		_, err = s.SubmitReport(ctx, scout.Identity, 55.0, 15.0, model.ReasonMissing)
		So(err, ShouldBeNil)

		vp := model.Viewport{LatMin: 49, LatMax: 51, LonMin: 9, LonMax: 11}

		Convey("When queried at a low zoom", func() {
			items, err := s.MapView(ctx, "", vp, 3)
			So(err, ShouldBeNil)

			Convey("Then the near pair collapses into one cluster", func() {
				So(len(items), ShouldEqual, 1)
				cl, ok := items[0].(model.CvmCluster)
				So(ok, ShouldBeTrue)
				So(cl.Count, ShouldEqual, 2)
			})
		})

		Convey("When queried at a high zoom", func() {
			items, err := s.MapView(ctx, "", vp, 19)
			So(err, ShouldBeNil)

			Convey("Then both CVMs appear as singletons", func() {
				So(len(items), ShouldEqual, 2)
			})
		})

		Convey("When the viewer has voted on a visible CVM", func() {
			_, err := s.CastVote(ctx, voter.Identity, near1.ID, model.VoteUp)
			So(err, ShouldBeNil)

			items, err := s.MapView(ctx, voter.Identity, vp, 19)
			So(err, ShouldBeNil)

			Convey("Then only that CVM carries the personalization", func() {
				var marked int
				for _, item := range items {
					cvm, ok := item.(model.Cvm)
					So(ok, ShouldBeTrue)
					if cvm.ID == near1.ID {
						So(cvm.AlreadyVoted, ShouldEqual, model.VoteUp)
						marked++
					} else {
						So(cvm.AlreadyVoted, ShouldEqual, model.VoteNone)
					}
				}
				So(marked, ShouldEqual, 1)
			})
		})

		Convey("Then inverted bounds are rejected", func() {
			_, err := s.MapView(ctx, "", model.Viewport{LatMin: 51, LatMax: 49, LonMin: 9, LonMax: 11}, 10)
			So(err, ShouldEqual, service.ErrInvalidViewport)
		})
	})
}

func TestRemovalFloor(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a removal floor", t, func() {
		s := newService(t, service.WithReputationEngine(reputation.New(
			reputation.WithRemovalFloor(-0.5),
		)))
		scout, err := s.Register(ctx, "scout")
		So(err, ShouldBeNil)
		critic, err := s.Register(ctx, "critic")
		So(err, ShouldBeNil)

		cvm, err := s.SubmitReport(ctx, scout.Identity, 50.0, 10.0, model.ReasonMissing)
		So(err, ShouldBeNil)
		vp := model.Viewport{LatMin: 49, LatMax: 51, LonMin: 9, LonMax: 11}

		Convey("Then it is visible while the score holds", func() {
			items, err := s.MapView(ctx, "", vp, 19)
			So(err, ShouldBeNil)
			So(len(items), ShouldEqual, 1)
		})

		Convey("When downvoted below the floor", func() {
			_, err := s.CastVote(ctx, critic.Identity, cvm.ID, model.VoteDown)
			So(err, ShouldBeNil)

			Convey("Then the CVM disappears from viewport queries", func() {
				items, err := s.MapView(ctx, "", vp, 19)
				So(err, ShouldBeNil)
				So(len(items), ShouldEqual, 0)
			})

			Convey("Then direct lookup still works", func() {
				got, err := s.Cvm(ctx, cvm.ID)
				So(err, ShouldBeNil)
				So(got.Score, ShouldEqual, -1.0)
			})
		})
	})
}

func TestPagination(t *testing.T) {
	ctx := context.Background()

	Convey("Given several registered identities", t, func() {
		s := newService(t, service.WithMaxPerPage(50))
		var last model.IdentInfo
		for i := 0; i < 5; i++ {
			info, err := s.Register(ctx, "")
			So(err, ShouldBeNil)
			last = info
		}

		Convey("Then leaderboard pages are 1-based and sized correctly", func() {
			page, err := s.Leaderboard(ctx, 1, 2)
			So(err, ShouldBeNil)
			So(len(page.Content), ShouldEqual, 2)
			So(page.Info.TotalElements, ShouldEqual, 5)
			So(page.Info.TotalPages, ShouldEqual, 3)

			tail, err := s.Leaderboard(ctx, 3, 2)
			So(err, ShouldBeNil)
			So(len(tail.Content), ShouldEqual, 1)
		})

		Convey("Then a page past the end is empty, not an error", func() {
			past, err := s.Leaderboard(ctx, 10, 2)
			So(err, ShouldBeNil)
			So(len(past.Content), ShouldEqual, 0)
			So(past.Info.TotalElements, ShouldEqual, 5)
		})

		Convey("Then invalid pagination is rejected", func() {
			_, err := s.Leaderboard(ctx, 0, 10)
			So(err, ShouldEqual, service.ErrInvalidPagination)
			_, err = s.Leaderboard(ctx, 1, 0)
			So(err, ShouldEqual, service.ErrInvalidPagination)
			_, err = s.Leaderboard(ctx, 1, 51)
			So(err, ShouldEqual, service.ErrInvalidPagination)
		})

		Convey("Then identity event history pages correctly", func() {
			page, err := s.IdentityEvents(ctx, last.Identity, 1, 10)
			So(err, ShouldBeNil)
			So(len(page.Content), ShouldEqual, 1)
			So(page.Content[0].Kind, ShouldEqual, model.KindRegistration)

			empty, err := s.IdentityEvents(ctx, last.Identity, 2, 10)
			So(err, ShouldBeNil)
			So(len(empty.Content), ShouldEqual, 0)

			_, err = s.IdentityEvents(ctx, "ghost", 1, 10)
			So(err, ShouldEqual, service.ErrNotFound)
		})
	})
}

func TestDisplayNameUpdate(t *testing.T) {
	ctx := context.Background()

	Convey("Given a registered identity", t, func() {
		s := newService(t)
		info, err := s.Register(ctx, "before")
		So(err, ShouldBeNil)

		Convey("When the display name changes", func() {
			So(s.SetDisplayName(ctx, info.Identity, "after"), ShouldBeNil)

			Convey("Then the projection reflects it after the refresh settles", func() {
				deadline := time.Now().Add(2 * time.Second)
				var got model.IdentInfo
				for time.Now().Before(deadline) {
					got, err = s.Identity(ctx, info.Identity)
					So(err, ShouldBeNil)
					if got.DisplayName == "after" {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(got.DisplayName, ShouldEqual, "after")
			})
		})

		Convey("Then unknown identities are rejected", func() {
			So(s.SetDisplayName(ctx, "ghost", "x"), ShouldEqual, service.ErrUnknownIdentity)
		})
	})
}

func TestConcurrentReadsDuringAppends(t *testing.T) {
	ctx := context.Background()

	Convey("Given readers racing a stream of reports", t, func() {
		s := newService(t, service.WithCredibilityFloor(0))
		scout, err := s.Register(ctx, "scout")
		So(err, ShouldBeNil)
		cvm, err := s.SubmitReport(ctx, scout.Identity, 50.0, 10.0, model.ReasonMissing)
		So(err, ShouldBeNil)

		done := make(chan struct{})
		var readers sync.WaitGroup
		for i := 0; i < 4; i++ {
			readers.Add(1)
			go func() {
				defer readers.Done()
				for {
					select {
					case <-done:
						return
					default:
					}
					_, _ = s.Identity(ctx, scout.Identity)
					_, _ = s.Cvm(ctx, cvm.ID)
				}
			}()
		}

		const writes = 300
		for i := 0; i < writes; i++ {
			_, err := s.SubmitReport(ctx, scout.Identity, 50.0, 10.0, model.ReasonSpam)
			So(err, ShouldBeNil)
		}
		close(done)
		readers.Wait()

		Convey("Then a read after the last append sees every report", func() {
			got, err := s.Cvm(ctx, cvm.ID)
			So(err, ShouldBeNil)
			So(got.RecentlyReported.Spam, ShouldEqual, writes)
		})

		Convey("Then the identity projection settles on the full history", func() {
			info, err := s.Identity(ctx, scout.Identity)
			So(err, ShouldBeNil)
			// report_cast for the creating report plus one per repeat.
			So(info.Karma, ShouldEqual, int64(writes+1))
		})
	})
}
