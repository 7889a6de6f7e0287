package supervisor

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/roach88/bypassd/internal/events"
)

const readBufferSize = 64 * 1024

// readLoop consumes engine output until EOF. If the engine exits on its
// own the reader wins the Running -> Stopping transition and tears the run
// down itself.
func (s *Supervisor) readLoop(r *run) {
	defer close(r.readerDone)

	br := bufio.NewReaderSize(r.output, readBufferSize)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			s.handleLine(r, strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.logger.Warn("engine output read failed", "error", err)
			}
			break
		}
	}

	if s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		r.logger.Info("engine output closed, stopping")
		s.awaitExit(r)
		s.finish(r, false)
	}
}

// handleLine processes one line. A panic here is logged and the reader
// moves on to the next line.
func (s *Supervisor) handleLine(r *run, line string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("engine line handler panicked", "line", line, "panic", p)
		}
	}()

	ev, ok := events.Parse(line)
	if err := r.debug.write(line, ok); err != nil && !r.debugFailed {
		r.debugFailed = true
		r.logger.Warn("debug file write failed, further errors suppressed", "error", err)
	}

	n := Notification{Session: r.session, Time: time.Now(), Line: line}
	if !ok {
		s.metrics.ObserveUnrecognized()
		s.emitLine(n)
		return
	}

	s.metrics.ObserveEvent(ev.Kind())
	n.Event = ev
	n.Change = s.learn.Apply(ev)

	if n.Change.LockChanged {
		lock := n.Change.Lock
		r.logger.Info("lock changed",
			"domain", lock.Domain,
			"protocol", lock.Protocol.String(),
			"strategy", lock.Strategy)
		s.updateLockGauges()
		s.persist()
	}
	if n.Change.Outcome {
		r.outcomes++
		if r.outcomes%s.flushEvery == 0 {
			s.persist()
		}
	}

	s.publish(n)
	s.emitLine(n)
	if n.Change.LockChanged && s.lockSink != nil {
		s.lockSink(n.Change.Lock.Domain, n.Change.Lock.Strategy)
	}
}

func (s *Supervisor) publish(n Notification) {
	select {
	case s.notes <- n:
	default:
		s.metrics.ObserveDropped()
	}
}

func (s *Supervisor) emitLine(n Notification) {
	if s.lineSink != nil {
		s.lineSink(n)
	}
}
