package astarte

import (
	"context"
	"log"
	"time"
)

// reinitMsg is the notification the session engine sends the reinit
// worker: a message-passing channel whose messages are Terminate and
// Reinitialize, in place of a shared TERMINATE/REINIT flag.
type reinitMsg int

const (
	msgReinitialize reinitMsg = iota
	msgTerminate
)

// reinitWorker is the dedicated goroutine that re-bootstraps credentials
// and reconnects after a certificate is rejected by the broker, driving
// the Connected -> Reinitializing transition.
type reinitWorker struct {
	d    *Device
	ch   chan reinitMsg
	done chan struct{}
}

func newReinitWorker(d *Device) *reinitWorker {
	w := &reinitWorker{d: d, ch: make(chan reinitMsg, 1), done: make(chan struct{})}
	go w.run()
	return w
}

// requestReinit notifies the worker to re-run init_connection. It never
// blocks: a pending notification already queued makes a duplicate
// request redundant.
func (w *reinitWorker) requestReinit() {
	select {
	case w.ch <- msgReinitialize:
	default:
	}
}

// terminate notifies the worker to stop and waits for it to exit.
func (w *reinitWorker) terminate() {
	select {
	case w.ch <- msgTerminate:
	case <-w.done:
		return
	}
	<-w.done
}

func (w *reinitWorker) run() {
	defer close(w.done)
	for msg := range w.ch {
		if msg == msgTerminate {
			return
		}
		if w.doReinit() {
			return
		}
	}
}

// doReinit deletes the stored certificate and retries init_connection
// with a fixed backoff until it succeeds, the device reconnects on its
// own (a false positive reinit trigger), or termination is requested. It
// returns true iff the worker should exit.
func (w *reinitWorker) doReinit() bool {
	d := w.d
	d.mu.lock()
	d.state = stateReinitializing
	d.mu.unlock()

	for {
		d.metrics.ReinitAttempts.Inc()

		if err := d.credMgr.DeleteCertificate(); err != nil {
			log.Printf("astarte: reinit: delete certificate: %v", err)
		}

		d.mu.lock()
		if d.state == stateConnected {
			// a reconnect raced the reinit trigger; the original TLS
			// error was a false positive, nothing left to do.
			d.mu.unlock()
			return false
		}
		tp, topic, err := d.initConnectionLocked(context.Background())
		if err == nil {
			d.tp = tp
			d.deviceTopic = topic
			d.wireTransportLocked()
		}
		d.mu.unlock()

		if err == nil {
			if cErr := tp.Connect(context.Background()); cErr == nil {
				return false
			} else {
				log.Printf("astarte: reinit: connect failed: %v", cErr)
			}
		} else {
			log.Printf("astarte: reinit: init_connection failed: %v", err)
		}

		if terminate := w.waitBackoff(); terminate {
			return true
		}
	}
}

// waitBackoff sleeps for the configured reinit backoff, returning early
// (with terminate=true) if termination is requested meanwhile. A
// Reinitialize notification received during the wait is absorbed as a
// cue to retry immediately rather than terminate.
func (w *reinitWorker) waitBackoff() (terminate bool) {
	timer := time.NewTimer(w.d.cfg.ReinitBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case msg := <-w.ch:
		return msg == msgTerminate
	}
}
