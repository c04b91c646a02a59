package registry

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/gearbid/auction-backend/internal/room"
)

type msg interface{ isRegistryMsg() }

type getOrCreateMsg struct {
	auctionID string
	reply     chan *room.Room
}

type removeRoomMsg struct{ auctionID string }

type countMsg struct{ reply chan int }

func (getOrCreateMsg) isRegistryMsg() {}
func (removeRoomMsg) isRegistryMsg()  {}
func (countMsg) isRegistryMsg()       {}

// ConfigFunc resolves the room configuration (base price, increment, grace
// period) for an auction id.
type ConfigFunc func(auctionID string) room.Config

// Registry is the process-wide auction id → room lookup. A single loop
// goroutine owns the map, so two concurrent callers can never construct two
// rooms for the same id.
type Registry struct {
	inbox    chan msg
	rooms    map[string]*room.Room
	roomConf ConfigFunc
	clock    clockwork.Clock
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, roomConf ConfigFunc, clock clockwork.Clock, log *zap.Logger) *Registry {
	ctx, cancel := context.WithCancel(parent)
	g := &Registry{
		inbox:    make(chan msg, 64),
		rooms:    make(map[string]*room.Room),
		roomConf: roomConf,
		clock:    clock,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go g.loop()
	return g
}

// GetOrCreate returns the live room for auctionID, creating it lazily. It
// never fails while the registry runs: a retired room is replaced by a fresh
// one with an empty ledger. Returns nil only after Shutdown.
func (g *Registry) GetOrCreate(auctionID string) *room.Room {
	reply := make(chan *room.Room, 1)
	select {
	case g.inbox <- getOrCreateMsg{auctionID: auctionID, reply: reply}:
	case <-g.ctx.Done():
		return nil
	}
	select {
	case rm := <-reply:
		return rm
	case <-g.ctx.Done():
		return nil
	}
}

// RoomCount reports the number of live rooms.
func (g *Registry) RoomCount() int {
	reply := make(chan int, 1)
	select {
	case g.inbox <- countMsg{reply: reply}:
	case <-g.ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-g.ctx.Done():
		return 0
	}
}

// Shutdown stops the registry and retires every room.
func (g *Registry) Shutdown() { g.cancel() }

func (g *Registry) loop() {
	for {
		select {
		case <-g.ctx.Done():
			clear(g.rooms)
			return

		case m := <-g.inbox:
			switch msg := m.(type) {
			case getOrCreateMsg:
				msg.reply <- g.getOrCreate(msg.auctionID)

			case removeRoomMsg:
				// only drop a room that really is done; a fresh
				// replacement under the same id must survive
				if rm := g.rooms[msg.auctionID]; rm != nil {
					select {
					case <-rm.Done():
						delete(g.rooms, msg.auctionID)
					default:
					}
				}

			case countMsg:
				msg.reply <- len(g.rooms)
			}
		}
	}
}

func (g *Registry) getOrCreate(auctionID string) *room.Room {
	if rm := g.rooms[auctionID]; rm != nil {
		select {
		case <-rm.Done():
			// retired but its removal message hasn't landed yet
		default:
			return rm
		}
	}

	rm := room.New(g.ctx, auctionID, g.roomConf(auctionID), g.clock, g.log, func() {
		select {
		case g.inbox <- removeRoomMsg{auctionID: auctionID}:
		case <-g.ctx.Done():
		}
	})
	g.rooms[auctionID] = rm
	g.log.Info("room created", zap.String("auction_id", auctionID))
	return rm
}
