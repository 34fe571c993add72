package repository

import (
	"math/rand/v2"
	"sync"

	"github.com/okian/credence/pkg/metrics"
)

// RankIndex orders users by reputation score for leaderboard reads. It is a
// treap keyed by (score DESC, userID ASC), so in-order traversal produces the
// leaderboard from best to worst. The index is derived state: the ledger
// pushes every new score into it and it can be rebuilt from the user store.
type RankIndex struct {
	mu   sync.RWMutex
	root *node
	byID map[string]int64
}

// Entry is one leaderboard row. Users with equal scores share a rank and the
// next rank skips accordingly (1, 1, 3).
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	Score  int64  `json:"reputation_score"`
}

type node struct {
	id    string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) ranks before (bScore, bID).
func less(aScore int64, aID string, bScore int64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countHigher returns how many entries score strictly above score.
func countHigher(n *node, score int64) int {
	count := 0
	for n != nil {
		if n.score > score {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, Entry{UserID: n.id, Score: n.score})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// NewRankIndex creates an empty index.
func NewRankIndex() *RankIndex {
	return &RankIndex{byID: make(map[string]int64)}
}

// Set records userID's current score, replacing any previous one.
func (r *RankIndex) Set(userID string, score int64) {
	r.mu.Lock()
	if old, ok := r.byID[userID]; ok {
		if old == score {
			r.mu.Unlock()
			return
		}
		r.root = deleteNode(r.root, userID, old)
	}
	r.byID[userID] = score
	r.root = insert(r.root, userID, score)
	size := len(r.byID)
	r.mu.Unlock()

	metrics.UpdateRankIndexSize(size)
}

// Remove drops userID from the index.
func (r *RankIndex) Remove(userID string) {
	r.mu.Lock()
	old, ok := r.byID[userID]
	if ok {
		r.root = deleteNode(r.root, userID, old)
		delete(r.byID, userID)
	}
	size := len(r.byID)
	r.mu.Unlock()

	if ok {
		metrics.UpdateRankIndexSize(size)
	}
}

// Rank returns the leaderboard row of userID in O(log n).
func (r *RankIndex) Rank(userID string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	score, ok := r.byID[userID]
	if !ok {
		return Entry{}, ErrRankNotFound
	}
	return Entry{Rank: countHigher(r.root, score) + 1, UserID: userID, Score: score}, nil
}

// TopN returns the best n rows.
func (r *RankIndex) TopN(n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("rank_index", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	r.mu.RLock()
	out := make([]Entry, 0, min(n, len(r.byID)))
	collectTopN(r.root, n, &out)
	r.mu.RUnlock()

	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out, nil
}

// Count returns the number of ranked users.
func (r *RankIndex) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
