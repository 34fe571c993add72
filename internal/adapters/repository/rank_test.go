package repository

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/okian/credence/internal/domain/errkind"
)

func TestRankIndex_BasicOperations(t *testing.T) {
	idx := NewRankIndex()

	if count := idx.Count(); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	idx.Set("alice", 150)
	if count := idx.Count(); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	entry, err := idx.Rank("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Rank != 1 || entry.Score != 150 {
		t.Errorf("expected rank 1 score 150, got %+v", entry)
	}

	entries, err := idx.TopN(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].UserID != "alice" {
		t.Errorf("unexpected top entries %+v", entries)
	}
}

func TestRankIndex_ScoreCanDrop(t *testing.T) {
	idx := NewRankIndex()
	idx.Set("alice", 185)
	idx.Set("bob", 120)

	// A dispute penalty moves alice below bob.
	idx.Set("alice", 85)

	top, err := idx.TopN(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if top[0].UserID != "bob" || top[1].UserID != "alice" {
		t.Errorf("expected bob before alice, got %+v", top)
	}
	if top[1].Score != 85 {
		t.Errorf("expected alice at 85, got %d", top[1].Score)
	}
	if idx.Count() != 2 {
		t.Errorf("expected count 2, got %d", idx.Count())
	}
}

func TestRankIndex_TiesShareRank(t *testing.T) {
	idx := NewRankIndex()
	idx.Set("c", 100)
	idx.Set("a", 200)
	idx.Set("b", 200)
	idx.Set("d", 50)

	top, err := idx.TopN(4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Entry{
		{Rank: 1, UserID: "a", Score: 200},
		{Rank: 1, UserID: "b", Score: 200},
		{Rank: 3, UserID: "c", Score: 100},
		{Rank: 4, UserID: "d", Score: 50},
	}
	for i, w := range want {
		if top[i] != w {
			t.Errorf("position %d: expected %+v, got %+v", i, w, top[i])
		}
	}

	for _, w := range want {
		got, err := idx.Rank(w.UserID)
		if err != nil {
			t.Fatalf("rank %s: %v", w.UserID, err)
		}
		if got.Rank != w.Rank {
			t.Errorf("rank %s: expected %d, got %d", w.UserID, w.Rank, got.Rank)
		}
	}
}

func TestRankIndex_EdgeCases(t *testing.T) {
	idx := NewRankIndex()

	if _, err := idx.Rank("ghost"); !errors.Is(err, errkind.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := idx.TopN(0); !errors.Is(err, errkind.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}

	idx.Set("alice", 0)
	idx.Set("alice", 0)
	if idx.Count() != 1 {
		t.Errorf("expected count 1, got %d", idx.Count())
	}

	idx.Remove("alice")
	idx.Remove("alice")
	if idx.Count() != 0 {
		t.Errorf("expected empty index, got %d", idx.Count())
	}
	top, err := idx.TopN(5)
	if err != nil || len(top) != 0 {
		t.Errorf("expected empty top, got %+v %v", top, err)
	}
}

func TestRankIndex_MatchesSortedOrder(t *testing.T) {
	idx := NewRankIndex()
	rng := rand.New(rand.NewSource(7))
	scores := make(map[string]int64)
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("user-%03d", rng.Intn(300))
		score := int64(rng.Intn(500))
		scores[id] = score
		idx.Set(id, score)
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return less(scores[ids[i]], ids[i], scores[ids[j]], ids[j]) })

	top, err := idx.TopN(len(ids))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(top) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(top))
	}
	for i, id := range ids {
		if top[i].UserID != id || top[i].Score != scores[id] {
			t.Fatalf("position %d: expected %s/%d, got %+v", i, id, scores[id], top[i])
		}
		got, _ := idx.Rank(id)
		if got.Rank != top[i].Rank {
			t.Fatalf("rank mismatch for %s: %d vs %d", id, got.Rank, top[i].Rank)
		}
	}
}

func TestRankIndex_ConcurrentAccess(t *testing.T) {
	idx := NewRankIndex()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("user-%d-%d", w, i%20)
				idx.Set(id, int64(i))
				_, _ = idx.Rank(id)
				_, _ = idx.TopN(5)
			}
		}(w)
	}
	wg.Wait()

	if idx.Count() != 160 {
		t.Errorf("expected 160 users, got %d", idx.Count())
	}
}
