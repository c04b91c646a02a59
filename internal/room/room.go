package room

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gearbid/auction-backend/internal/ledger"
	"github.com/gearbid/auction-backend/internal/presence"
)

// ErrRetired is returned for any operation against a room whose grace period
// elapsed with no subscribers. Callers obtain a fresh room via the registry.
var ErrRetired = errors.New("room retired")

type State string

const (
	StateActive   State = "active"
	StateRetiring State = "retiring"
	StateRetired  State = "retired"
)

type Config struct {
	BasePrice     int64
	MinIncrement  int64
	GracePeriod   time.Duration
	SubscriberBuf int
}

// Subscription is one client's attachment to a room: the snapshot taken at
// the moment the stream began, and the ordered delta channel. The channel is
// closed when the subscriber is dropped (overflow) or the room goes away;
// the client must then re-subscribe for a fresh snapshot.
type Subscription struct {
	Handle   uuid.UUID
	Snapshot Snapshot
	Deltas   <-chan Delta
}

type msg interface{ isRoomMsg() }

type subscribeMsg struct {
	identity    string
	displayName string
	reply       chan *Subscription
}

type unsubscribeMsg struct{ handle uuid.UUID }

type markOfflineMsg struct{ handle uuid.UUID }

type submitMsg struct {
	identity    string
	displayName string
	amount      int64
	reply       chan submitReply
}

type submitReply struct {
	bid  ledger.Bid
	view View
	err  error
}

type viewMsg struct{ reply chan View }

type retireFiredMsg struct{ gen int }

func (subscribeMsg) isRoomMsg()   {}
func (unsubscribeMsg) isRoomMsg() {}
func (markOfflineMsg) isRoomMsg() {}
func (submitMsg) isRoomMsg()      {}
func (viewMsg) isRoomMsg()        {}
func (retireFiredMsg) isRoomMsg() {}

// Room is the single-writer actor owning one auction's ledger, presence set
// and subscriber set. All mutations happen on the loop goroutine, which is
// what guarantees the strictly-increasing ladder under concurrent bids.
type Room struct {
	id    string
	cfg   Config
	inbox chan msg
	done  chan struct{}
	ctx   context.Context
	clock clockwork.Clock
	log   *zap.Logger

	// loop-owned; never touched outside the loop goroutine
	led        *ledger.Ledger
	tracker    *presence.Tracker
	subs       map[uuid.UUID]chan Delta
	deltaSeq   int
	state      State
	retireGen  int
	retireStop chan struct{}
	onRetired  func()
}

func New(parent context.Context, id string, cfg Config, clock clockwork.Clock, log *zap.Logger, onRetired func()) *Room {
	if cfg.SubscriberBuf <= 0 {
		cfg.SubscriberBuf = 16
	}
	r := &Room{
		id:        id,
		cfg:       cfg,
		inbox:     make(chan msg, 64),
		done:      make(chan struct{}),
		ctx:       parent,
		clock:     clock,
		log:       log.With(zap.String("auction_id", id)),
		led:       ledger.New(cfg.BasePrice, cfg.MinIncrement),
		tracker:   presence.NewTracker(clock),
		subs:      make(map[uuid.UUID]chan Delta),
		state:     StateActive,
		onRetired: onRetired,
	}
	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room is retired and its state discarded.
func (r *Room) Done() <-chan struct{} { return r.done }

// Subscribe atomically registers a delta stream and attaches a presence
// handle for identity, returning the snapshot taken in the same actor turn.
func (r *Room) Subscribe(identity, displayName string) (*Subscription, error) {
	reply := make(chan *Subscription, 1)
	select {
	case r.inbox <- subscribeMsg{identity: identity, displayName: displayName, reply: reply}:
	case <-r.done:
		return nil, ErrRetired
	}
	select {
	case sub := <-reply:
		return sub, nil
	case <-r.done:
		return nil, ErrRetired
	}
}

// Unsubscribe releases the subscription and its presence handle. Idempotent;
// safe after the room has already retired.
func (r *Room) Unsubscribe(handle uuid.UUID) {
	select {
	case r.inbox <- unsubscribeMsg{handle: handle}:
	case <-r.done:
	}
}

// MarkOffline flips the presence handle offline without tearing down the
// delta stream. The transport calls it when it detects connection loss.
// Idempotent.
func (r *Room) MarkOffline(handle uuid.UUID) {
	select {
	case r.inbox <- markOfflineMsg{handle: handle}:
	case <-r.done:
	}
}

// SubmitBid validates the bid against the ledger. On acceptance the
// BidAccepted delta is enqueued to every subscriber before this call
// returns, and the returned view already contains the new bid.
func (r *Room) SubmitBid(identity, displayName string, amount int64) (ledger.Bid, View, error) {
	reply := make(chan submitReply, 1)
	select {
	case r.inbox <- submitMsg{identity: identity, displayName: displayName, amount: amount, reply: reply}:
	case <-r.done:
		return ledger.Bid{}, View{}, ErrRetired
	}
	select {
	case rep := <-reply:
		return rep.bid, rep.view, rep.err
	case <-r.done:
		return ledger.Bid{}, View{}, ErrRetired
	}
}

// CurrentView reads the room state without mutating it.
func (r *Room) CurrentView() (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- viewMsg{reply: reply}:
	case <-r.done:
		return View{}, ErrRetired
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrRetired
	}
}

func (r *Room) loop() {
	// a freshly created room has no subscribers yet, so its grace clock is
	// already running
	r.startRetirement()

	for {
		select {
		case <-r.ctx.Done():
			r.retire()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case subscribeMsg:
				r.handleSubscribe(msg)

			case unsubscribeMsg:
				r.dropSubscriber(msg.handle)
				r.maybeStartRetirement()

			case markOfflineMsg:
				if rec, wentOffline := r.tracker.Detach(msg.handle); wentOffline {
					r.broadcast(Delta{Kind: DeltaPresenceChanged, Presence: &rec})
				}

			case submitMsg:
				r.handleSubmit(msg)

			case viewMsg:
				msg.reply <- r.view()

			case retireFiredMsg:
				if msg.gen == r.retireGen && r.state == StateRetiring && len(r.subs) == 0 {
					r.retire()
					return
				}
			}
		}
	}
}

func (r *Room) handleSubscribe(msg subscribeMsg) {
	if r.state == StateRetiring {
		r.state = StateActive
		r.retireGen++
		if r.retireStop != nil {
			close(r.retireStop)
			r.retireStop = nil
		}
	}

	name := fallbackName(msg.identity, msg.displayName)
	handle, rec, wentOnline := r.tracker.Attach(msg.identity, name)
	ch := make(chan Delta, r.cfg.SubscriberBuf)
	r.subs[handle] = ch

	msg.reply <- &Subscription{
		Handle:   handle,
		Snapshot: r.snapshot(msg.identity),
		Deltas:   ch,
	}
	if wentOnline {
		r.broadcast(Delta{Kind: DeltaPresenceChanged, Presence: &rec})
	}
	r.log.Info("subscriber joined",
		zap.String("identity", msg.identity),
		zap.Int("subscribers", len(r.subs)))
}

func (r *Room) handleSubmit(msg submitMsg) {
	name := fallbackName(msg.identity, msg.displayName)
	bid, err := r.led.TryAppend(msg.identity, name, msg.amount, r.clock.Now())
	if err != nil {
		msg.reply <- submitReply{view: r.view(), err: err}
		return
	}
	// fan out before replying so the submitter's next read sees its own bid
	r.broadcast(Delta{Kind: DeltaBidAccepted, Bid: &bid})
	msg.reply <- submitReply{bid: bid, view: r.view()}
	r.log.Info("bid accepted",
		zap.String("bidder", msg.identity),
		zap.Int64("amount", bid.Amount),
		zap.Int("sequence", bid.Sequence))
}

// broadcast assigns the next delta sequence and performs the non-blocking
// fan-out. A subscriber whose buffer is full is disconnected on the spot;
// the offline transitions that causes are themselves broadcast, in order.
func (r *Room) broadcast(d Delta) {
	queue := []Delta{d}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		r.deltaSeq++
		cur.Seq = r.deltaSeq

		var overflowed []uuid.UUID
		for handle, ch := range r.subs {
			select {
			case ch <- cur:
			default:
				overflowed = append(overflowed, handle)
			}
		}
		for _, handle := range overflowed {
			r.log.Warn("subscriber buffer overflow, disconnecting",
				zap.String("handle", handle.String()))
			ch := r.subs[handle]
			delete(r.subs, handle)
			close(ch)
			if rec, wentOffline := r.tracker.Detach(handle); wentOffline {
				queue = append(queue, Delta{Kind: DeltaPresenceChanged, Presence: &rec})
			}
		}
	}
	r.maybeStartRetirement()
}

func (r *Room) dropSubscriber(handle uuid.UUID) {
	if ch, ok := r.subs[handle]; ok {
		delete(r.subs, handle)
		close(ch)
	}
	if rec, wentOffline := r.tracker.Detach(handle); wentOffline {
		r.broadcast(Delta{Kind: DeltaPresenceChanged, Presence: &rec})
	}
}

func (r *Room) maybeStartRetirement() {
	if r.state == StateActive && len(r.subs) == 0 {
		r.startRetirement()
	}
}

func (r *Room) startRetirement() {
	r.state = StateRetiring
	r.retireGen++
	gen := r.retireGen
	timer := r.clock.NewTimer(r.cfg.GracePeriod)
	stop := make(chan struct{})
	r.retireStop = stop

	// the stop channel releases this goroutine as soon as the grace period
	// is cancelled; a stale fire that squeaks through loses on gen anyway
	go func() {
		select {
		case <-timer.Chan():
			select {
			case r.inbox <- retireFiredMsg{gen: gen}:
			case <-r.done:
			}
		case <-stop:
			timer.Stop()
		case <-r.done:
			timer.Stop()
		}
	}()
}

func (r *Room) retire() {
	r.state = StateRetired
	for handle, ch := range r.subs {
		delete(r.subs, handle)
		close(ch)
	}
	close(r.done)
	if r.onRetired != nil {
		r.onRetired()
	}
	r.log.Info("room retired")
}

func (r *Room) snapshot(exclude string) Snapshot {
	return Snapshot{
		AuctionID: r.id,
		BasePrice: r.led.BasePrice(),
		Bids:      r.led.Bids(),
		Roster:    r.tracker.Snapshot(exclude),
		DeltaSeq:  r.deltaSeq,
	}
}

func (r *Room) view() View {
	highest, highestName, count := r.led.Highest()
	return View{
		AuctionID:   r.id,
		State:       r.state,
		BasePrice:   r.led.BasePrice(),
		Highest:     highest,
		HighestName: highestName,
		BidCount:    count,
		Bids:        r.led.Bids(),
		Roster:      r.tracker.Snapshot(""),
		Subscribers: len(r.subs),
		DeltaSeq:    r.deltaSeq,
	}
}

// fallbackName mirrors the display rule of the UI: an empty display name
// falls back to the identity's local part before '@'.
func fallbackName(identity, displayName string) string {
	if displayName != "" {
		return displayName
	}
	if i := strings.IndexByte(identity, '@'); i > 0 {
		return identity[:i]
	}
	return identity
}
