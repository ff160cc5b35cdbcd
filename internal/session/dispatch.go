package session

import "sync"

// dispatcher runs collaborator calls on a single goroutine in the order they
// were queued. Queueing never blocks, so transitions can enqueue while still
// holding the controller lock and the resulting calls keep transition order.
type dispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	closed  bool
	done    chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{done: make(chan struct{})}
	d.cond = sync.NewCond(&d.mu)
	go d.loop()
	return d
}

func (d *dispatcher) enqueue(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.queue = append(d.queue, fn)
	d.cond.Broadcast()
}

func (d *dispatcher) loop() {
	defer close(d.done)

	d.mu.Lock()
	for {
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if len(d.queue) == 0 && d.closed {
			d.mu.Unlock()
			return
		}

		fn := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.running = true
		d.mu.Unlock()

		fn()

		d.mu.Lock()
		d.running = false
		d.cond.Broadcast()
	}
}

// wait blocks until every queued call has run.
func (d *dispatcher) wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) > 0 || d.running {
		d.cond.Wait()
	}
}

// close drains the queue and stops the loop. Calls queued afterwards are dropped.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.cond.Broadcast()
	d.mu.Unlock()
	<-d.done
}
