package game

import (
	"sort"
	"time"
)

// Player is the transient in-memory state of someone who asked for a match.
// It is created from a profile snapshot when matchmaking starts and lives
// until the player leaves the queue or the session is torn down.
type Player struct {
	Identity    string
	DisplayName string
	ImageRef    string
	Conn        Conn

	Mode   Mode
	Bucket BucketKey
	Stake  int64
	Rating int

	Score int
	Move  Move

	RequestedAt time.Time
}

// Queue holds FIFO waiting lists keyed by bucket. An identity is in at most
// one bucket at a time.
type Queue struct {
	buckets map[BucketKey][]*Player
	index   map[string]BucketKey
}

func NewQueue() *Queue {
	return &Queue{
		buckets: make(map[BucketKey][]*Player),
		index:   make(map[string]BucketKey),
	}
}

func (q *Queue) Contains(identity string) bool {
	_, ok := q.index[identity]
	return ok
}

// Enqueue appends p to its bucket. It reports false if the identity is
// already waiting somewhere.
func (q *Queue) Enqueue(p *Player) bool {
	if q.Contains(p.Identity) {
		return false
	}
	q.buckets[p.Bucket] = append(q.buckets[p.Bucket], p)
	q.index[p.Identity] = p.Bucket
	return true
}

// PushFront puts p back at the head of its bucket. Used when a pairing
// falls through and the surviving player keeps their place.
func (q *Queue) PushFront(p *Player) bool {
	if q.Contains(p.Identity) {
		return false
	}
	q.buckets[p.Bucket] = append([]*Player{p}, q.buckets[p.Bucket]...)
	q.index[p.Identity] = p.Bucket
	return true
}

// PopHead removes and returns the longest-waiting player in bucket.
func (q *Queue) PopHead(bucket BucketKey) *Player {
	waiting := q.buckets[bucket]
	if len(waiting) == 0 {
		return nil
	}
	head := waiting[0]
	waiting[0] = nil
	q.buckets[bucket] = waiting[1:]
	delete(q.index, head.Identity)
	return head
}

// TryPair pops the head of p's bucket as its opponent. When the bucket is
// empty p is enqueued instead and paired is false.
func (q *Queue) TryPair(p *Player) (opponent *Player, paired bool) {
	if head := q.PopHead(p.Bucket); head != nil {
		return head, true
	}
	q.Enqueue(p)
	return nil, false
}

// Remove drops identity from whichever bucket holds it.
func (q *Queue) Remove(identity string) bool {
	bucket, ok := q.index[identity]
	if !ok {
		return false
	}
	delete(q.index, identity)
	waiting := q.buckets[bucket]
	for i, p := range waiting {
		if p.Identity == identity {
			q.buckets[bucket] = append(waiting[:i:i], waiting[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) Len(bucket BucketKey) int {
	return len(q.buckets[bucket])
}

// BucketSize is one line of a queue status report.
type BucketSize struct {
	Bucket  BucketKey `json:"bucket"`
	Waiting int       `json:"waiting"`
}

// Sizes lists every bucket that has ever been used, including empty ones,
// ordered by key.
func (q *Queue) Sizes() []BucketSize {
	out := make([]BucketSize, 0, len(q.buckets))
	for b, waiting := range q.buckets {
		out = append(out, BucketSize{Bucket: b, Waiting: len(waiting)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out
}
