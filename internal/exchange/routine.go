package exchange

import (
	"fmt"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/gurukamath/silkworm/libs/log"
)

// Event is anything BlockExchange's coordinator loop processes: an inbound
// wire message, a peer-stats update, or a periodic tick.
type Event interface{}

type handleFunc = func(Event) (Event, error)

// routine serializes a single goroutine's event processing behind a FIFO
// queue, handling events in the order they were sent, the same shape
// tendermint's blockchain/v2 package uses to give each long-running activity its own single-threaded state machine
// without hand-rolled channel juggling at every call site.
type routine struct {
	name    string
	handle  handleFunc
	queue   *queue.Queue
	out     chan Event
	fin     chan error
	running *uint32
	logger  log.Logger
}

func newRoutine(name string, handle handleFunc, logger log.Logger, bufferSize int) *routine {
	return &routine{
		name:    name,
		handle:  handle,
		queue:   queue.New(int64(bufferSize)),
		out:     make(chan Event, bufferSize),
		fin:     make(chan error, 1),
		running: new(uint32),
		logger:  logger,
	}
}

func (rt *routine) start() {
	if !atomic.CompareAndSwapUint32(rt.running, 0, 1) {
		panic(fmt.Sprintf("%s is already running", rt.name))
	}
	defer atomic.StoreUint32(rt.running, 0)

	for {
		items, err := rt.queue.Get(1)
		if err == queue.ErrDisposed {
			rt.fin <- nil
			return
		} else if err != nil {
			rt.fin <- err
			return
		}
		out, err := rt.handle(items[0].(Event))
		if err != nil {
			rt.fin <- err
			return
		}
		if out != nil {
			rt.out <- out
		}
	}
}

func (rt *routine) send(event Event) bool {
	if atomic.LoadUint32(rt.running) != 1 {
		return false
	}
	if err := rt.queue.Put(event); err != nil {
		rt.logger.Error(fmt.Sprintf("%s: send failed, queue full or stopped", rt.name), "err", err)
		return false
	}
	return true
}

func (rt *routine) next() chan Event { return rt.out }

func (rt *routine) final() chan error { return rt.fin }

func (rt *routine) stop() {
	if atomic.LoadUint32(rt.running) != 1 {
		return
	}
	rt.queue.Dispose()
}
