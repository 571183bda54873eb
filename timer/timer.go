// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/logger"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs callbacks from a single min-heap, checked every tick.
// Callbacks run on their own goroutines, outside the queue lock, so a
// callback may add or remove timers.
type TimerManager struct {
	queue    TimerQueue
	mutex    sync.Mutex
	nextId   int64
	tick     time.Duration
	stop     chan struct{}
	stopOnce sync.Once
	running  sync.WaitGroup
}

// NewTimerManager starts a scheduler with the given resolution (100ms if not
// positive).
func NewTimerManager(tick time.Duration) *TimerManager {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		nextId: 1,
		tick:   tick,
		stop:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

// AddTimer schedules callback after delay, then every interval if positive.
func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

// Every schedules callback every interval, first run one interval from now.
func (m *TimerManager) Every(interval time.Duration, callback func()) int64 {
	return m.AddTimer(interval, interval, callback)
}

// RemoveTimer cancels a timer. It reports whether the timer was pending.
func (m *TimerManager) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, task.index)
			return true
		}
	}
	return false
}

// Len returns the number of pending timers.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop halts the scheduler and waits for running callbacks. Safe to call
// more than once.
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.running.Wait()
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			for _, task := range m.due(now) {
				m.run(task)
			}
		case <-m.stop:
			return
		}
	}
}

// due pops every task whose time has come and reschedules periodic ones.
func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		ready = append(ready, task)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return ready
}

func (m *TimerManager) run(task *TimerTask) {
	m.running.Add(1)
	go func() {
		defer m.running.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Log.Errorw("timer callback panicked", "timer", task.Id, "panic", r)
			}
		}()
		task.Callback()
	}()
}
