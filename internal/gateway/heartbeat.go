package gateway

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// heartbeat is the supervisor goroutine keeping the connection alive. It
// runs independently of the read loop: send a beat carrying the last-seen
// sequence, then wait out the interval or the kill signal. The only state
// it shares with the rest of the gateway is the ack flag.
type heartbeat struct {
	logger   *zap.Logger
	interval time.Duration

	send    func(seq int64) error
	seq     func() int64
	onStale func()

	mu     sync.Mutex
	acked  bool
	misses int

	kill chan struct{}
	done chan struct{}
}

func newHeartbeat(logger *zap.Logger, interval time.Duration, send func(seq int64) error, seq func() int64, onStale func()) *heartbeat {
	return &heartbeat{
		logger:   logger,
		interval: interval,
		send:     send,
		seq:      seq,
		onStale:  onStale,
		// Pre-seeded so a slow first ack does not count as a miss.
		acked: true,
		kill:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

func (h *heartbeat) start() {
	go h.run()
}

func (h *heartbeat) run() {
	defer close(h.done)
	for {
		if !h.checkAck() {
			return
		}
		if err := h.send(h.seq()); err != nil {
			h.logger.Sugar().Warnf("Couldn't send heartbeat: %s.", err)
		}

		select {
		case <-time.After(h.interval):
		case <-h.kill:
			return
		}
	}
}

// checkAck examines the previous beat's acknowledgement and arms the next
// one. Two consecutive misses mean the connection is stale: report and
// exit so the gateway can force a reconnect.
func (h *heartbeat) checkAck() bool {
	h.mu.Lock()
	acked := h.acked
	if acked {
		h.misses = 0
	} else {
		h.misses++
	}
	misses := h.misses
	h.acked = false
	h.mu.Unlock()

	if misses == 0 {
		return true
	}
	h.logger.Sugar().Warnf("Heartbeat was not acknowledged within the interval (%d consecutive).", misses)
	if misses >= 2 {
		go h.onStale()
		return false
	}
	return true
}

// ack marks the outstanding beat acknowledged. Called from the read loop.
func (h *heartbeat) ack() {
	h.mu.Lock()
	h.acked = true
	h.misses = 0
	h.mu.Unlock()
}

// stop raises the kill signal and joins the supervisor goroutine.
func (h *heartbeat) stop() {
	select {
	case <-h.kill:
	default:
		close(h.kill)
	}
	<-h.done
}
