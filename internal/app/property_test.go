package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/adapters/memory"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/ports/inbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Concurrent submitters never lose or double-count a bid: the stored count
// equals the admitted bids and the price equals the highest admitted amount.
func TestConcurrentBidders_Property(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(2, 12).Draw(rt, "bidders")
		raw := rapid.SliceOfN(rapid.Int64Range(1050, 20000), n, n).Draw(rt, "amounts")

		store := memory.NewStore()
		clk := &clock{now: t0}
		bids := NewBidService(BidServiceParams{
			Store:       store,
			Rules:       ledger.DefaultRules(),
			MaxAttempts: 2 * n,
			Now:         clk.Now,
			Logger:      zerolog.Nop(),
		})
		auctions := NewAuctionService(AuctionServiceParams{
			Store:  store,
			Rules:  ledger.DefaultRules(),
			Now:    clk.Now,
			Logger: zerolog.Nop(),
		})

		ctx := context.Background()
		a, err := auctions.CreateAuction(ctx, inbound.CreateAuctionRequest{
			ListingID:     uuid.New(),
			SellerID:      uuid.New(),
			StartingPrice: decimal.NewFromInt(1000),
			EndTime:       t0.Add(time.Hour),
		})
		require.NoError(rt, err)

		var (
			mu       sync.Mutex
			admitted []decimal.Decimal
			wg       sync.WaitGroup
		)
		for _, v := range raw {
			wg.Add(1)
			go func(v int64) {
				defer wg.Done()
				amt := decimal.NewFromInt(v)
				_, err := bids.PlaceBid(ctx, inbound.PlaceBidRequest{AuctionID: a.ID, BidderID: uuid.New(), Amount: amt})
				if err == nil {
					mu.Lock()
					admitted = append(admitted, amt)
					mu.Unlock()
				}
			}(v)
		}
		wg.Wait()

		stored, err := store.GetAuction(ctx, a.ID)
		require.NoError(rt, err)
		require.Equal(rt, len(admitted), stored.BidCount)

		want := decimal.NewFromInt(1000)
		for _, amt := range admitted {
			want = decimal.Max(want, amt)
		}
		require.True(rt, stored.CurrentBid.Equal(want), "current %s, want %s", stored.CurrentBid, want)

		all, err := store.ListBids(ctx, a.ID)
		require.NoError(rt, err)
		require.Len(rt, all, len(admitted))
		winning := 0
		for _, b := range all {
			if b.IsWinning() {
				winning++
			}
		}
		if len(admitted) > 0 {
			require.Equal(rt, 1, winning)
		}
	})
}
