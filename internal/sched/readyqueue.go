package sched

import (
	"sync"

	"github.com/kestrelrun/gvthread/internal/vtcore"
)

// localCapacity bounds each worker's per-priority local deque.
// Matches original_source's ready_queue/simple.rs LOCAL_CAPACITY.
const localCapacity = 256

// globalCheckInterval is how often pop() checks the global queues
// before the local one, preventing a worker that only ever has local
// work from starving global submissions — Go's own scheduler uses 61
// for the identical reason (a prime, so it doesn't alias with common
// pop batch sizes).
const globalCheckInterval = 61

// localDeque is a bounded FIFO local to one worker and one priority
// level. Pushes/pops happen from the owning worker; steals happen from
// any worker, so it's guarded by a plain mutex rather than the
// lock-free ring the real Go scheduler uses — correctness over
// micro-optimizing a structure that's only ever a few hundred entries
// deep.
type localDeque struct {
	mu    sync.Mutex
	items []vtcore.ID
}

func newLocalDeque() *localDeque {
	return &localDeque{items: make([]vtcore.ID, 0, localCapacity)}
}

func (q *localDeque) push(id vtcore.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= localCapacity {
		return false
	}
	q.items = append(q.items, id)
	return true
}

func (q *localDeque) pop() (vtcore.ID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return 0, false
	}
	id := q.items[0]
	q.items = q.items[1:]
	return id, true
}

// stealHalf removes and returns the front half of the deque, for a
// thief worker to drain from a victim.
func (q *localDeque) stealHalf() []vtcore.ID {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items) / 2
	if n == 0 {
		return nil
	}
	stolen := append([]vtcore.ID(nil), q.items[:n]...)
	q.items = append(q.items[:0], q.items[n:]...)
	return stolen
}

func (q *localDeque) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// globalQueue is the shared fallback FIFO for one priority level.
type globalQueue struct {
	mu    sync.Mutex
	items []vtcore.ID
}

func newGlobalQueue() *globalQueue { return &globalQueue{} }

func (g *globalQueue) push(id vtcore.ID) {
	g.mu.Lock()
	g.items = append(g.items, id)
	g.mu.Unlock()
}

func (g *globalQueue) pop() (vtcore.ID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.items) == 0 {
		return 0, false
	}
	id := g.items[0]
	g.items = g.items[1:]
	return id, true
}

func (g *globalQueue) popBatch(max int) []vtcore.ID {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := len(g.items)
	if n > max {
		n = max
	}
	if n == 0 {
		return nil
	}
	batch := append([]vtcore.ID(nil), g.items[:n]...)
	g.items = append(g.items[:0], g.items[n:]...)
	return batch
}

func (g *globalQueue) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

// ReadyQueue is the priority-aware, work-stealing scheduler queue of
// spec §4.E, extended from original_source's single-priority SimpleQueue
// to the full vtcore.NumPriorities levels spec.md names (Critical/High/
// Normal/Low). Pop serves every worker from every priority level: it
// does not consult a worker's low-priority flag, so workers counted in
// NumLowPriorityWorkers dequeue Critical, High and Normal VTs as well as
// Low ones.
type ReadyQueue struct {
	numWorkers int

	local  [][vtcore.NumPriorities]*localDeque
	global [vtcore.NumPriorities]*globalQueue

	counters []uint64
	rngState []uint64

	parker *Parker
}

// NewReadyQueue builds a ReadyQueue sized for numWorkers.
func NewReadyQueue(numWorkers int) *ReadyQueue {
	rq := &ReadyQueue{
		numWorkers: numWorkers,
		local:      make([][vtcore.NumPriorities]*localDeque, numWorkers),
		counters:   make([]uint64, numWorkers),
		rngState:   make([]uint64, numWorkers),
		parker:     NewParker(),
	}
	for p := 0; p < vtcore.NumPriorities; p++ {
		rq.global[p] = newGlobalQueue()
	}
	for w := 0; w < numWorkers; w++ {
		for p := 0; p < vtcore.NumPriorities; p++ {
			rq.local[w][p] = newLocalDeque()
		}
		rq.rngState[w] = uint64(w)*2654435761 + 1
	}
	return rq
}

// Push enqueues id at priority. hintWorker, if >= 0, is tried as a
// local-queue home before falling back to the global queue for that
// priority, mirroring spec's push(gvt_id, priority, hint_worker).
func (rq *ReadyQueue) Push(id vtcore.ID, priority vtcore.Priority, hintWorker int) {
	if hintWorker >= 0 && hintWorker < rq.numWorkers {
		if rq.local[hintWorker][priority].push(id) {
			rq.parker.WakeOne()
			return
		}
	}
	rq.global[priority].push(id)
	rq.parker.WakeOne()
}

// nextRand is a simple LCG, matching simple.rs's victim RNG — no need
// for crypto-grade randomness in steal target selection.
func (rq *ReadyQueue) nextRand(worker int) uint64 {
	old := rq.rngState[worker]
	next := old*1103515245 + 12345
	rq.rngState[worker] = next
	return next
}

func (rq *ReadyQueue) randomVictim(worker int) int {
	if rq.numWorkers <= 1 {
		return 0
	}
	return int(rq.nextRand(worker) % uint64(rq.numWorkers))
}

func (rq *ReadyQueue) tryStealAt(worker, priority int) (vtcore.ID, bool) {
	attempts := rq.numWorkers
	if attempts > 4 {
		attempts = 4
	}
	for i := 0; i < attempts; i++ {
		victim := rq.randomVictim(worker)
		if victim == worker {
			continue
		}
		stolen := rq.local[victim][priority].stealHalf()
		if len(stolen) == 0 {
			continue
		}
		first := stolen[0]
		for _, id := range stolen[1:] {
			if !rq.local[worker][priority].push(id) {
				rq.global[priority].push(id)
			}
		}
		return first, true
	}
	return 0, false
}

// Pop returns the next VT this worker should run, along with its
// priority, checking strictly from Critical down to Low within each
// stage (global-check, local, global+batch, steal). Stages are tried in
// that order, so a Low VT in this worker's local deque is returned
// before a Critical VT that is waiting in the global queue.
func (rq *ReadyQueue) Pop(worker int) (vtcore.ID, vtcore.Priority, bool) {
	if worker < 0 || worker >= rq.numWorkers {
		return 0, 0, false
	}

	rq.counters[worker]++
	if rq.counters[worker]%globalCheckInterval == 0 {
		if id, p, ok := rq.popGlobalAny(); ok {
			return id, p, true
		}
	}

	for p := vtcore.Priority(0); p < vtcore.NumPriorities; p++ {
		if id, ok := rq.local[worker][p].pop(); ok {
			return id, p, true
		}
	}

	if id, p, ok := rq.popGlobalAny(); ok {
		batch := rq.global[p].popBatch(localCapacity / 2)
		for _, bid := range batch {
			rq.local[worker][p].push(bid)
		}
		return id, p, true
	}

	for p := vtcore.Priority(0); p < vtcore.NumPriorities; p++ {
		if id, ok := rq.tryStealAt(worker, int(p)); ok {
			return id, p, true
		}
	}

	return 0, 0, false
}

func (rq *ReadyQueue) popGlobalAny() (vtcore.ID, vtcore.Priority, bool) {
	for p := vtcore.Priority(0); p < vtcore.NumPriorities; p++ {
		if id, ok := rq.global[p].pop(); ok {
			return id, p, true
		}
	}
	return 0, 0, false
}

// Len reports the total number of runnable VTs across all queues, used
// by Shutdown/diagnostics, not the hot path.
func (rq *ReadyQueue) Len() int {
	total := 0
	for p := 0; p < vtcore.NumPriorities; p++ {
		total += rq.global[p].len()
	}
	for w := 0; w < rq.numWorkers; w++ {
		for p := 0; p < vtcore.NumPriorities; p++ {
			total += rq.local[w][p].len()
		}
	}
	return total
}

// Park blocks the calling worker until woken or timeoutMS elapses.
func (rq *ReadyQueue) Park(timeoutMS int64) { rq.parker.Park(timeoutMS) }

// WakeAll wakes every parked worker, used on shutdown.
func (rq *ReadyQueue) WakeAll() { rq.parker.WakeAll() }
