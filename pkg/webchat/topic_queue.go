package webchat

import (
	"context"
	"sync"
	"time"
)

type topicKey struct {
	ClientID string
	TopicID  string
}

type queuedChat struct {
	Run        func(ctx context.Context)
	EnqueuedAt time.Time
}

type topicLane struct {
	ctx     context.Context
	queue   []queuedChat
	running bool
	active  bool
}

// TopicQueues serializes chat jobs per (client, topic). Jobs for different
// topics run concurrently; jobs for the same topic run in arrival order.
type TopicQueues struct {
	mu     sync.Mutex
	lanes  map[topicKey]*topicLane
	closed bool
	wg     sync.WaitGroup
}

func NewTopicQueues() *TopicQueues {
	return &TopicQueues{lanes: map[topicKey]*topicLane{}}
}

// Enqueue appends a job and returns its position (1 means it starts now).
// ctx is the connection context; jobs still waiting when it is cancelled are skipped.
// After Close, Enqueue drops the job and returns 0.
func (q *TopicQueues) Enqueue(ctx context.Context, clientID, topicID string, run func(ctx context.Context)) int {
	key := topicKey{ClientID: clientID, TopicID: topicID}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	lane, ok := q.lanes[key]
	if !ok {
		lane = &topicLane{ctx: ctx}
		q.lanes[key] = lane
	}
	lane.queue = append(lane.queue, queuedChat{Run: run, EnqueuedAt: time.Now()})
	pos := len(lane.queue)
	if lane.active {
		pos++
	}
	start := !lane.running
	lane.running = true
	if start {
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drain(key, lane)
	}
	return pos
}

// Wait blocks until every lane has drained.
func (q *TopicQueues) Wait() {
	q.wg.Wait()
}

// Close stops accepting jobs and waits for the running lanes to drain.
func (q *TopicQueues) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.Wait()
}

func (q *TopicQueues) drain(key topicKey, lane *topicLane) {
	defer q.wg.Done()
	for {
		job, ok := q.dequeue(key, lane)
		if !ok {
			return
		}
		if lane.ctx.Err() != nil {
			continue
		}
		job.Run(lane.ctx)
	}
}

func (q *TopicQueues) dequeue(key topicKey, lane *topicLane) (queuedChat, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	lane.active = false
	if len(lane.queue) == 0 {
		lane.running = false
		delete(q.lanes, key)
		return queuedChat{}, false
	}
	job := lane.queue[0]
	lane.queue = lane.queue[1:]
	lane.active = true
	return job, true
}
