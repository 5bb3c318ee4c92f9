package app

import (
	"context"
	"hash/fnv"
	"time"

	"auction-engine/internal/domain/auction"
	"auction-engine/internal/domain/ledger"
	"auction-engine/internal/domain/shared"
	"auction-engine/internal/ports/outbound"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const dispatchTimeout = 5 * time.Second

// Dispatcher delivers the events of committed units asynchronously. Every
// auction is pinned to one single-worker lane, so the batches of an auction
// are delivered in commit order while different auctions proceed in parallel.
type Dispatcher struct {
	broadcaster outbound.Broadcaster
	lanes       []*pond.WorkerPool
	ids         *shared.EventIDs
	logger      zerolog.Logger
}

type DispatcherParams struct {
	Broadcaster outbound.Broadcaster
	// Workers is the number of lanes.
	Workers int
	// QueueSize bounds the batches waiting across all lanes.
	QueueSize int
	Logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher backed by bounded worker pools
func NewDispatcher(params DispatcherParams) *Dispatcher {
	workers := params.Workers
	if workers <= 0 {
		workers = 4
	}
	queue := params.QueueSize
	if queue <= 0 {
		queue = 1024
	}
	perLane := queue / workers
	if perLane < 1 {
		perLane = 1
	}
	lanes := make([]*pond.WorkerPool, workers)
	for i := range lanes {
		// A pinned worker never idles out, so every task goes through the
		// lane's FIFO queue.
		lanes[i] = pond.New(1, perLane, pond.MinWorkers(1))
	}
	return &Dispatcher{
		broadcaster: params.Broadcaster,
		lanes:       lanes,
		ids:         shared.NewEventIDs(),
		logger:      params.Logger.With().Str("component", "event_dispatcher").Logger(),
	}
}

func (d *Dispatcher) lane(auctionID uuid.UUID) *pond.WorkerPool {
	h := fnv.New32a()
	_, _ = h.Write(auctionID[:])
	return d.lanes[h.Sum32()%uint32(len(d.lanes))]
}

// Dispatch queues a batch without blocking. A full lane drops the batch.
func (d *Dispatcher) Dispatch(batch []outbound.Event) {
	if d == nil || len(batch) == 0 {
		return
	}
	submitted := d.lane(batch[0].AuctionID).TrySubmit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		for _, event := range batch {
			d.deliver(ctx, event)
		}
	})
	if !submitted {
		d.logger.Warn().
			Str("auction_id", batch[0].AuctionID.String()).
			Int("events", len(batch)).
			Msg("Dispatch queue full, dropping events")
	}
}

func (d *Dispatcher) deliver(ctx context.Context, event outbound.Event) {
	var err error
	if event.UserID != nil {
		err = d.broadcaster.Notify(ctx, *event.UserID, event)
	} else {
		err = d.broadcaster.Publish(ctx, event.AuctionID, event)
	}
	if err != nil {
		d.logger.Error().Err(err).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Str("auction_id", event.AuctionID.String()).
			Msg("Failed to broadcast event")
	}
}

// Stop waits for queued batches to be delivered
func (d *Dispatcher) Stop() {
	if d == nil {
		return
	}
	for _, lane := range d.lanes {
		lane.StopAndWait()
	}
}

// Events turns the outcome of a committed unit into broadcast events.
func (d *Dispatcher) Events(l *ledger.Ledger, now time.Time) []outbound.Event {
	a := l.Auction()
	o := l.Outcome()
	var events []outbound.Event
	add := func(t outbound.EventType, data map[string]interface{}) *outbound.Event {
		events = append(events, outbound.Event{
			ID:        d.ids.Next(),
			Type:      t,
			AuctionID: a.ID,
			Data:      data,
			Timestamp: now.UnixMilli(),
		})
		return &events[len(events)-1]
	}

	if o.Started {
		add(outbound.EventTypeAuctionStarted, map[string]interface{}{
			"status":     auction.StatusActive,
			"start_time": a.StartTime,
			"end_time":   a.EndTime,
		})
	}
	for _, p := range o.Placements {
		add(outbound.EventTypeBidPlaced, map[string]interface{}{
			"bid_id":       p.Bid.ID,
			"bidder_id":    p.Bid.BidderID,
			"amount":       p.Bid.Amount,
			"is_proxy":     p.Bid.IsProxy,
			"auto":         p.Synthetic,
			"current_bid":  p.CurrentBid,
			"bid_count":    p.BidCount,
			"next_min_bid": p.NextMinBid,
			"placed_at":    p.Bid.PlacedAt,
		})
	}
	if ext := o.Extension; ext != nil {
		add(outbound.EventTypeAuctionExtended, map[string]interface{}{
			"previous_end_time": ext.PreviousEndTime,
			"new_end_time":      ext.NewEndTime,
			"extension_count":   ext.ExtensionCount,
			"manual":            ext.Manual,
			"reason":            ext.Reason,
		})
	}
	for _, n := range o.Outbid {
		userID := n.UserID
		ev := add(outbound.EventTypeUserOutbid, map[string]interface{}{
			"previous_bid":    n.PreviousBid,
			"new_highest_bid": a.CurrentBid,
			"time_remaining":  int64(a.TimeRemaining(now).Seconds()),
		})
		ev.UserID = &userID
	}
	if r := o.Retraction; r != nil {
		data := map[string]interface{}{
			"bid_id":      r.Bid.ID,
			"bidder_id":   r.Bid.BidderID,
			"amount":      r.Bid.Amount,
			"reason":      r.Reason,
			"was_leading": r.WasLeading,
			"current_bid": r.NewCurrentBid,
			"bid_count":   a.BidCount,
			"reserve_met": a.ReserveMet,
		}
		if r.NewLeader != nil {
			data["leader_id"] = r.NewLeader.BidderID
		}
		add(outbound.EventTypeBidRetracted, data)
	}
	if res := o.Ended; res != nil {
		data := map[string]interface{}{
			"status":      res.Status,
			"total_bids":  res.TotalBids,
			"reserve_met": res.ReserveMet,
		}
		if res.WinnerID != nil {
			data["winner_id"] = *res.WinnerID
		}
		if res.WinningBid != nil {
			data["winning_bid"] = *res.WinningBid
		}
		add(outbound.EventTypeAuctionEnded, data)
	}
	if c := o.Cancelled; c != nil {
		add(outbound.EventTypeAuctionCancelled, map[string]interface{}{
			"reason":       c.Reason,
			"requested_by": c.RequestedBy,
		})
	}
	if mc := o.MandateCancelled; mc != nil {
		userID := mc.BidderID
		ev := add(outbound.EventTypeProxyCancelled, map[string]interface{}{
			"bid_id":     mc.Bid.ID,
			"ceiling":    mc.Ceiling,
			"amount":     mc.Bid.Amount,
			"bid_status": mc.Bid.Status,
		})
		ev.UserID = &userID
	}
	if o.Settled {
		data := map[string]interface{}{"final_price": a.CurrentBid}
		if a.WinnerID != nil {
			data["winner_id"] = *a.WinnerID
		}
		add(outbound.EventTypeAuctionSettled, data)
	}
	return events
}
