package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/adapters/memory"
	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/inbound"
	"auction-engine/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu     sync.Mutex
	events []outbound.Event
}

func (r *recorder) Publish(_ context.Context, _ uuid.UUID, event outbound.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Notify(_ context.Context, _ uuid.UUID, event outbound.Event) error {
	return r.Publish(context.Background(), uuid.Nil, event)
}

func (r *recorder) types() []outbound.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbound.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type denyAll struct{ retryAfter time.Duration }

func (d denyAll) Allow(context.Context, uuid.UUID) (bool, time.Duration) {
	return false, d.retryAfter
}

type fixture struct {
	store    *memory.Store
	clock    *clock
	events   *recorder
	dispatch *Dispatcher
	bids     *BidService
	auctions *AuctionService
}

func newFixture(t *testing.T, limiter outbound.RateLimiter) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		clock:  &clock{now: t0},
		events: &recorder{},
	}
	f.dispatch = NewDispatcher(DispatcherParams{Broadcaster: f.events, Workers: 1, Logger: zerolog.Nop()})
	t.Cleanup(f.dispatch.Stop)

	f.bids = NewBidService(BidServiceParams{
		Store:       f.store,
		RateLimiter: limiter,
		Dispatcher:  f.dispatch,
		Rules:       ledger.DefaultRules(),
		Now:         f.clock.Now,
		Logger:      zerolog.Nop(),
	})
	f.auctions = NewAuctionService(AuctionServiceParams{
		Store:      f.store,
		Dispatcher: f.dispatch,
		Rules:      ledger.DefaultRules(),
		Now:        f.clock.Now,
		Logger:     zerolog.Nop(),
	})
	return f
}

func (f *fixture) createAuction(t *testing.T, opts ...func(*inbound.CreateAuctionRequest)) *auction.Auction {
	t.Helper()
	req := inbound.CreateAuctionRequest{
		ListingID:     uuid.New(),
		SellerID:      uuid.New(),
		StartingPrice: decimal.NewFromInt(1000),
		EndTime:       t0.Add(time.Hour),
	}
	for _, o := range opts {
		o(&req)
	}
	a, err := f.auctions.CreateAuction(context.Background(), req)
	require.NoError(t, err)
	return a
}

// flush waits for every dispatched batch to reach the recorder.
func (f *fixture) flush() {
	f.dispatch.Stop()
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestPlaceBid_CommitsAndBroadcasts(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	_, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: first, Amount: amount(1100)})
	require.NoError(t, err)

	adm, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: second, Amount: amount(1300)})
	require.NoError(t, err)
	assert.True(t, adm.Delta.CurrentBid.Equal(amount(1300)))
	assert.Equal(t, 2, adm.Delta.BidCount)
	assert.Equal(t, second, adm.Leader.BidderID)

	stored, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Version)
	assert.True(t, stored.CurrentBid.Equal(amount(1300)))

	f.flush()
	assert.Equal(t, []outbound.EventType{
		outbound.EventTypeBidPlaced,
		outbound.EventTypeBidPlaced,
		outbound.EventTypeUserOutbid,
	}, f.events.types())

	outbid := f.events.events[2]
	require.NotNil(t, outbid.UserID)
	assert.Equal(t, first, *outbid.UserID)
	assert.Less(t, f.events.events[0].ID, f.events.events[1].ID)
}

func TestPlaceBid_RateLimited(t *testing.T) {
	f := newFixture(t, denyAll{retryAfter: 30 * time.Second})
	a := f.createAuction(t)

	_, err := f.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: amount(1100)})
	require.ErrorIs(t, err, shared.ErrRateLimited)

	var limited *shared.RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, 30*time.Second, limited.RetryAfter)
	assert.Equal(t, shared.KindRateLimit, shared.Classify(err))
}

func TestPlaceBid_RetriesConflicts(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		failWith error
		wantErr  error
	}{
		{name: "one conflict then success", failures: 1, failWith: shared.ErrConflict},
		{name: "transient outage then success", failures: 2, failWith: context.DeadlineExceeded},
		{name: "conflicts exhaust attempts", failures: 3, failWith: shared.ErrConflict, wantErr: shared.ErrConflict},
		{name: "outage exhausts attempts", failures: 3, failWith: shared.ErrUnavailable, wantErr: shared.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			a := f.createAuction(t)

			var mu sync.Mutex
			calls := 0
			f.store.InjectFault(func(op string) error {
				if op != "commit" {
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			})

			_, err := f.bids.PlaceBid(context.Background(), inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: amount(1100)})
			f.store.InjectFault(nil)
			stored, getErr := f.store.GetAuction(context.Background(), a.ID)
			require.NoError(t, getErr)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 0, stored.BidCount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, stored.BidCount)
		})
	}
}

func TestPlaceBid_AfterEndEndsOnce(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)
	ctx := context.Background()
	winner := uuid.New()

	_, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: winner, Amount: amount(1100)})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	for i := 0; i < 3; i++ {
		_, err = f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: amount(5000 + int64(i)*1000)})
		require.ErrorIs(t, err, shared.ErrAuctionEnded)
	}

	stored, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, winner, *stored.WinnerID)

	_, err = f.auctions.EndAuction(ctx, a.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	f.flush()
	ended := 0
	for _, typ := range f.events.types() {
		if typ == outbound.EventTypeAuctionEnded {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestSetupProxyBid(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)
	ctx := context.Background()
	alice, bob, human := uuid.New(), uuid.New(), uuid.New()

	adm, err := f.bids.SetupProxyBid(ctx, inbound.SetupProxyBidRequest{AuctionID: a.ID, BidderID: alice, Ceiling: amount(2000)})
	require.NoError(t, err)
	assert.Empty(t, adm.Placed)
	assert.Nil(t, adm.Leader)

	_, err = f.bids.SetupProxyBid(ctx, inbound.SetupProxyBidRequest{AuctionID: a.ID, BidderID: bob, Ceiling: amount(2500)})
	require.NoError(t, err)

	adm, err = f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: human, Amount: amount(1100)})
	require.NoError(t, err)
	assert.True(t, adm.Delta.CurrentBid.Equal(amount(2100)))
	assert.Equal(t, bob, adm.Leader.BidderID)
	assert.Len(t, adm.Placed, 4)

	initial := amount(2200)
	_, err = f.bids.SetupProxyBid(ctx, inbound.SetupProxyBidRequest{AuctionID: a.ID, BidderID: bob, Ceiling: amount(4000), InitialBid: &initial})
	require.ErrorIs(t, err, shared.ErrProxyAlreadyActive)
}

func TestCancelProxyBid(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)
	ctx := context.Background()
	proxy, human := uuid.New(), uuid.New()

	ceiling := amount(3000)
	adm, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: proxy, Amount: amount(1100), ProxyCeiling: &ceiling})
	require.NoError(t, err)

	// well past the retraction window
	f.clock.Advance(20 * time.Minute)
	kept, err := f.bids.CancelProxyBid(ctx, inbound.CancelProxyBidRequest{AuctionID: a.ID, BidderID: proxy})
	require.NoError(t, err)
	assert.Equal(t, adm.Bid.ID, kept.ID)
	assert.True(t, kept.IsWinning())
	assert.False(t, kept.IsProxy)

	_, err = f.bids.CancelProxyBid(ctx, inbound.CancelProxyBidRequest{AuctionID: a.ID, BidderID: proxy})
	require.ErrorIs(t, err, shared.ErrNoActiveProxy)

	adm, err = f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: human, Amount: amount(1200)})
	require.NoError(t, err)
	assert.Len(t, adm.Placed, 1)
	assert.Equal(t, human, adm.Leader.BidderID)

	f.flush()
	assert.Contains(t, f.events.types(), outbound.EventTypeProxyCancelled)
}

func TestRetractBid(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)
	ctx := context.Background()
	low, high := uuid.New(), uuid.New()

	_, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: low, Amount: amount(1100)})
	require.NoError(t, err)
	adm, err := f.bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: high, Amount: amount(1300)})
	require.NoError(t, err)

	f.clock.Advance(6 * time.Minute)
	_, err = f.bids.RetractBid(ctx, inbound.RetractBidRequest{BidID: adm.Bid.ID, RequestedBy: high})
	require.ErrorIs(t, err, shared.ErrRetractionWindowClosed)

	f.clock.Advance(-4 * time.Minute)
	res, err := f.bids.RetractBid(ctx, inbound.RetractBidRequest{BidID: adm.Bid.ID, RequestedBy: high, Reason: "typo"})
	require.NoError(t, err)
	assert.True(t, res.Delta.CurrentBid.Equal(amount(1100)))
	assert.Equal(t, 1, res.Delta.BidCount)
	require.NotNil(t, res.Leader)
	assert.Equal(t, low, res.Leader.BidderID)

	_, err = f.bids.RetractBid(ctx, inbound.RetractBidRequest{BidID: uuid.New(), RequestedBy: high})
	require.ErrorIs(t, err, shared.ErrBidNotFound)
}

func TestSweep(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	expired := f.createAuction(t, func(r *inbound.CreateAuctionRequest) { r.EndTime = t0.Add(time.Minute) })
	scheduled := f.createAuction(t, func(r *inbound.CreateAuctionRequest) {
		r.StartTime = t0.Add(30 * time.Second)
		r.EndTime = t0.Add(time.Hour)
	})
	running := f.createAuction(t, func(r *inbound.CreateAuctionRequest) { r.EndTime = t0.Add(time.Hour) })
	assert.Equal(t, auction.StatusScheduled, scheduled.Status)

	f.clock.Advance(2 * time.Minute)
	report, err := f.auctions.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, &shared.SweepReport{Due: 2, Started: 1, Ended: 1}, report)

	for id, want := range map[uuid.UUID]auction.Status{
		expired.ID:   auction.StatusEnded,
		scheduled.ID: auction.StatusActive,
		running.ID:   auction.StatusActive,
	} {
		got, err := f.auctions.GetAuction(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status)
	}

	report, err = f.auctions.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
}

func TestLifecycle_CancelAndSettle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	a := f.createAuction(t)

	_, err := f.auctions.CancelAuction(ctx, inbound.CancelAuctionRequest{AuctionID: a.ID, RequestedBy: uuid.New()})
	require.ErrorIs(t, err, shared.ErrNotAuctionOwner)

	cancelled, err := f.auctions.CancelAuction(ctx, inbound.CancelAuctionRequest{AuctionID: a.ID, RequestedBy: a.SellerID, Reason: "withdrawn"})
	require.NoError(t, err)
	assert.Equal(t, auction.StatusCancelled, cancelled.Status)

	b := f.createAuction(t)
	system := inbound.SettleAuctionRequest{AuctionID: b.ID, RequestedBy: uuid.Nil}
	_, err = f.auctions.SettleAuction(ctx, system)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	f.clock.Advance(2 * time.Hour)
	_, err = f.auctions.EndAuction(ctx, b.ID)
	require.NoError(t, err)

	for _, caller := range []uuid.UUID{b.SellerID, uuid.New()} {
		_, err = f.auctions.SettleAuction(ctx, inbound.SettleAuctionRequest{AuctionID: b.ID, RequestedBy: caller})
		require.ErrorIs(t, err, shared.ErrNotAuctionOwner)
	}
	stored, err := f.store.GetAuction(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusEnded, stored.Status, "a refused settlement leaves the auction ended")

	settled, err := f.auctions.SettleAuction(ctx, system)
	require.NoError(t, err)
	assert.Equal(t, auction.StatusSettled, settled.Status)
}

func TestExtendAuction(t *testing.T) {
	f := newFixture(t, nil)
	a := f.createAuction(t)

	delta, err := f.auctions.ExtendAuction(context.Background(), inbound.ExtendAuctionRequest{
		AuctionID: a.ID, RequestedBy: a.SellerID, Minutes: 10, Reason: "more time",
	})
	require.NoError(t, err)
	assert.Equal(t, a.EndTime.Add(10*time.Minute), delta.NewEndTime)
	assert.True(t, delta.Extended)

	_, err = f.auctions.ExtendAuction(context.Background(), inbound.ExtendAuctionRequest{
		AuctionID: a.ID, RequestedBy: a.SellerID, Minutes: 90,
	})
	require.ErrorIs(t, err, shared.ErrInvalidExtension)
}

func TestCreateAuction_Validation(t *testing.T) {
	f := newFixture(t, nil)
	reserve := amount(500)

	tests := []struct {
		name string
		req  func(r *inbound.CreateAuctionRequest)
	}{
		{"missing seller", func(r *inbound.CreateAuctionRequest) { r.SellerID = uuid.Nil }},
		{"zero starting price", func(r *inbound.CreateAuctionRequest) { r.StartingPrice = decimal.Zero }},
		{"reserve below start", func(r *inbound.CreateAuctionRequest) { r.ReservePrice = &reserve }},
		{"end in the past", func(r *inbound.CreateAuctionRequest) { r.EndTime = t0.Add(-time.Minute) }},
		{"end before start", func(r *inbound.CreateAuctionRequest) {
			r.StartTime = t0.Add(2 * time.Hour)
			r.EndTime = t0.Add(time.Hour)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := inbound.CreateAuctionRequest{
				ListingID:     uuid.New(),
				SellerID:      uuid.New(),
				StartingPrice: amount(1000),
				EndTime:       t0.Add(time.Hour),
			}
			tt.req(&req)
			_, err := f.auctions.CreateAuction(context.Background(), req)
			require.ErrorIs(t, err, shared.ErrInvalidAuction)
		})
	}
}
