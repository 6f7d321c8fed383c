package loop

import (
	"sync"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
)

// Loop is a single-threaded callback event loop. All handle callbacks —
// wakeup callbacks, send completions, close completions — execute on the one
// goroutine that calls Run. Tasks are submitted from arbitrary goroutines via
// Submit and are executed in submission order.
type Loop struct {
	mu    sync.Mutex
	tasks *queue.Queue

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	stopOnce sync.Once
}

// New creates a loop. The loop does not process tasks until Run is called.
func New() *Loop {
	return &Loop{
		tasks: queue.New(),
		wake:  make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Submit schedules fn to run on the loop goroutine. Safe from any goroutine;
// never blocks. Tasks submitted after Stop has returned are not executed.
func (l *Loop) Submit(fn func()) {
	if fn == nil {
		panic("loop: nil task submitted")
	}

	l.mu.Lock()
	l.tasks.Add(fn)
	l.mu.Unlock()

	// Coalescing wakeup: one pending signal is enough, the loop drains the
	// whole task queue per wake.
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes tasks until Stop is called. It must be called exactly once,
// and the goroutine calling it becomes the loop goroutine.
func (l *Loop) Run() {
	defer close(l.done)

	for {
		select {
		case <-l.wake:
			l.runTasks()
		case <-l.quit:
			// Drain whatever was submitted before Stop so close
			// completions already in flight still run.
			l.runTasks()
			return
		}
	}
}

func (l *Loop) runTasks() {
	for {
		l.mu.Lock()
		if l.tasks.Length() == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.tasks.Remove().(func())
		l.mu.Unlock()

		fn()
	}
}

// Stop terminates Run after the already-submitted tasks have been processed
// and waits for the loop goroutine to exit. Must not be called from the loop
// goroutine itself. Safe to call more than once.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	<-l.done

	if pending := l.pendingTasks(); pending != 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Loop.Stop",
			"tasks":    pending,
		}).Debug("Loop stopped with unprocessed tasks")
	}
}

func (l *Loop) pendingTasks() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tasks.Length()
}
