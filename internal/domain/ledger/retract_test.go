package ledger_test

import (
	"testing"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/bid"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoBids commits 1100 by first and 1300 by second at t0.
func twoBids(t *testing.T) (*state, *bid.Bid, *bid.Bid) {
	t.Helper()
	s := &state{auction: newAuction()}
	l := s.unit(t0)
	low, err := l.Admit(ledger.BidRequest{BidderID: uuid.New(), Amount: d(1100)})
	require.NoError(t, err)
	s.commit(t, l)

	l = s.unit(t0)
	high, err := l.Admit(ledger.BidRequest{BidderID: uuid.New(), Amount: d(1300)})
	require.NoError(t, err)
	s.commit(t, l)
	return s, low, high
}

func TestRetract_DemotesLeader(t *testing.T) {
	s, low, high := twoBids(t)

	l := s.unit(t0.Add(2 * time.Minute))
	_, err := l.Retract(high.ID, high.BidderID, "typo")
	require.NoError(t, err)

	r := l.Outcome().Retraction
	require.NotNil(t, r)
	assert.True(t, r.WasLeading)
	require.NotNil(t, r.NewLeader)
	assert.Equal(t, low.ID, r.NewLeader.ID)
	assert.True(t, r.NewCurrentBid.Equal(d(1100)))

	s.commit(t, l)
	assert.Equal(t, 1, s.auction.BidCount)
	assert.True(t, s.auction.CurrentBid.Equal(d(1100)))
	assert.Equal(t, low.ID, s.leader().ID)
}

func TestRetract_LastBidResetsToStartingPrice(t *testing.T) {
	s := &state{auction: newAuction(func(a *auction.Auction) {
		a.ReservePrice = dp(1050)
		a.ReserveMet = false
	})}
	bidder := uuid.New()
	l := s.unit(t0)
	b, err := l.Admit(ledger.BidRequest{BidderID: bidder, Amount: d(1100)})
	require.NoError(t, err)
	s.commit(t, l)
	assert.True(t, s.auction.ReserveMet)

	l = s.unit(t0.Add(time.Minute))
	_, err = l.Retract(b.ID, bidder, "")
	require.NoError(t, err)
	s.commit(t, l)

	assert.True(t, s.auction.CurrentBid.Equal(d(1000)))
	assert.Equal(t, 0, s.auction.BidCount)
	assert.False(t, s.auction.ReserveMet)
	assert.Nil(t, s.leader())
}

func TestRetract_Rejections(t *testing.T) {
	s, low, high := twoBids(t)

	tests := []struct {
		name    string
		at      time.Time
		bidID   uuid.UUID
		by      uuid.UUID
		prepare func(*state)
		wantErr error
	}{
		{name: "window closed", at: t0.Add(6 * time.Minute), bidID: high.ID, by: high.BidderID, wantErr: shared.ErrRetractionWindowClosed},
		{name: "not owner", at: t0.Add(time.Minute), bidID: high.ID, by: low.BidderID, wantErr: shared.ErrNotBidOwner},
		{name: "unknown bid", at: t0.Add(time.Minute), bidID: uuid.New(), by: high.BidderID, wantErr: shared.ErrBidNotFound},
		{
			name: "already retracted", at: t0.Add(time.Minute), bidID: low.ID, by: low.BidderID,
			prepare: func(s *state) {
				for _, b := range s.bids {
					if b.ID == low.ID {
						b.Status = bid.StatusRetracted
					}
				}
			},
			wantErr: shared.ErrAlreadyRetracted,
		},
		{
			name: "auction ended", at: t0.Add(time.Minute), bidID: low.ID, by: low.BidderID,
			prepare: func(s *state) { s.auction.Status = auction.StatusEnded },
			wantErr: shared.ErrAuctionEnded,
		},
		{
			name: "won bid", at: t0.Add(time.Minute), bidID: high.ID, by: high.BidderID,
			prepare: func(s *state) {
				for _, b := range s.bids {
					if b.ID == high.ID {
						b.Status = bid.StatusWon
					}
				}
			},
			wantErr: shared.ErrBidWon,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cp := &state{auction: s.auction.Clone(), bids: bid.CloneAll(s.bids)}
			if tt.prepare != nil {
				tt.prepare(cp)
			}
			l := cp.unit(tt.at)
			_, err := l.Retract(tt.bidID, tt.by, "")
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, l.Dirty())
		})
	}
}

func TestRetract_AfterEndTimeFinalizes(t *testing.T) {
	s, _, high := twoBids(t)
	l := s.unit(s.auction.EndTime.Add(time.Second))
	_, err := l.Retract(high.ID, high.BidderID, "")
	require.ErrorIs(t, err, shared.ErrAuctionEnded)
	require.NotNil(t, l.Outcome().Ended)
	assert.True(t, l.Dirty())
}

func TestCancel(t *testing.T) {
	s, _, _ := twoBids(t)

	l := s.unit(t0.Add(time.Minute))
	require.ErrorIs(t, l.Cancel(uuid.New(), "nope"), shared.ErrNotAuctionOwner)
	assert.False(t, l.Dirty())

	require.NoError(t, l.Cancel(s.auction.SellerID, "item damaged"))
	s.commit(t, l)
	assert.Equal(t, auction.StatusCancelled, s.auction.Status)
	for _, b := range s.bids {
		assert.Equal(t, bid.StatusLost, b.Status)
	}

	l = s.unit(t0.Add(2 * time.Minute))
	require.ErrorIs(t, l.Cancel(uuid.Nil, ""), shared.ErrInvalidTransition)
}

func TestSettle(t *testing.T) {
	s, _, high := twoBids(t)

	l := s.unit(t0)
	require.ErrorIs(t, l.Settle(uuid.Nil), shared.ErrInvalidTransition)

	l = s.unit(s.auction.EndTime)
	require.NoError(t, l.Finalize())
	s.commit(t, l)
	assert.Equal(t, high.BidderID, *s.auction.WinnerID)

	l = s.unit(s.auction.EndTime.Add(time.Hour))
	for _, caller := range []uuid.UUID{s.auction.SellerID, high.BidderID, uuid.New()} {
		require.ErrorIs(t, l.Settle(caller), shared.ErrNotAuctionOwner)
	}
	assert.False(t, l.Dirty())
	require.NoError(t, l.Settle(uuid.Nil))
	assert.True(t, l.Outcome().Settled)
	s.commit(t, l)
	assert.Equal(t, auction.StatusSettled, s.auction.Status)
}

func TestExtend(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		by      func(a *auction.Auction) uuid.UUID
		mutate  func(a *auction.Auction)
		wantErr error
	}{
		{name: "seller extends", minutes: 15, by: func(a *auction.Auction) uuid.UUID { return a.SellerID }},
		{name: "not seller", minutes: 15, by: func(*auction.Auction) uuid.UUID { return uuid.New() }, wantErr: shared.ErrNotAuctionOwner},
		{name: "zero minutes", minutes: 0, by: func(a *auction.Auction) uuid.UUID { return a.SellerID }, wantErr: shared.ErrInvalidExtension},
		{name: "over an hour", minutes: 61, by: func(a *auction.Auction) uuid.UUID { return a.SellerID }, wantErr: shared.ErrInvalidExtension},
		{
			name: "cap reached", minutes: 5, by: func(a *auction.Auction) uuid.UUID { return a.SellerID },
			mutate:  func(a *auction.Auction) { a.ExtensionCount = a.MaxExtensions },
			wantErr: shared.ErrMaxExtensionsReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAuction()
			if tt.mutate != nil {
				tt.mutate(a)
			}
			l := ledger.New(ledger.DefaultRules(), a, nil, t0)
			err := l.Extend(tt.by(a), tt.minutes, "manual")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, l.Dirty())
				return
			}
			require.NoError(t, err)
			ext := l.Outcome().Extension
			require.NotNil(t, ext)
			assert.True(t, ext.Manual)
			assert.Equal(t, a.EndTime.Add(time.Duration(tt.minutes)*time.Minute), ext.NewEndTime)
			assert.Equal(t, 1, ext.ExtensionCount)
		})
	}
}
