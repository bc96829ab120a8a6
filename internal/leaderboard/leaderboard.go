// Package leaderboard holds the server-side top list behind /api/leaderboard.
package leaderboard

import (
	"context"
	"sort"
	"sync"
)

type Entry struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
}

// Board is a capped list of entries ordered by score, highest first.
type Board interface {
	Top(ctx context.Context) ([]Entry, error)
	Add(ctx context.Context, e Entry) error
}

// Seed is the list a fresh board starts with.
var Seed = []Entry{
	{Name: "Lionel", Score: 10000},
	{Name: "SpaceDog", Score: 8500},
	{Name: "TreatHunter", Score: 7200},
	{Name: "StarPup", Score: 6500},
	{Name: "CosmicCanine", Score: 5000},
}

type MemoryBoard struct {
	mu      sync.RWMutex
	entries []Entry
	size    int
}

func NewMemoryBoard(size int, seed []Entry) *MemoryBoard {
	b := &MemoryBoard{size: size, entries: append([]Entry(nil), seed...)}
	b.trim()
	return b
}

func (b *MemoryBoard) Top(_ context.Context) ([]Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out, nil
}

// Add inserts e, re-sorts and drops everything past the board size.
func (b *MemoryBoard) Add(_ context.Context, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	b.trim()
	return nil
}

func (b *MemoryBoard) trim() {
	sort.SliceStable(b.entries, func(i, j int) bool {
		return b.entries[i].Score > b.entries[j].Score
	})
	if b.size > 0 && len(b.entries) > b.size {
		b.entries = b.entries[:b.size]
	}
}
