package score

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

const (
	KeyHighScore    = "highScore"
	KeyTutorialSeen = "tutorialSeen"
	KeyScores       = "scores"
)

// KV is a string key/value store. Get reports whether the key exists.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// MemoryKV is an in-process KV.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Local is one profile's local store: high score, tutorial flag and a capped
// top-N list of entries.
type Local struct {
	kv     KV
	prefix string
	limit  int
}

func NewLocal(kv KV, profile string, limit int) *Local {
	if limit <= 0 {
		limit = DefaultLimit
	}
	prefix := ""
	if profile != "" {
		prefix = "profile:" + profile + ":"
	}
	return &Local{kv: kv, prefix: prefix, limit: limit}
}

// Scores returns stored entries sorted by score, highest first. Stored order
// is not trusted.
func (l *Local) Scores(ctx context.Context) ([]Entry, error) {
	raw, ok, err := l.kv.Get(ctx, l.prefix+KeyScores)
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	entries := []Entry{}
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
	}
	sortEntries(entries)
	if len(entries) > l.limit {
		entries = entries[:l.limit]
	}
	return entries, nil
}

// Add inserts an entry, keeps the top N by score and returns the new list.
func (l *Local) Add(ctx context.Context, e Entry) ([]Entry, error) {
	entries, err := l.Scores(ctx)
	if err != nil {
		return nil, err
	}
	entries = append(entries, e)
	sortEntries(entries)
	if len(entries) > l.limit {
		entries = entries[:l.limit]
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode scores: %w", err)
	}
	if err := l.kv.Set(ctx, l.prefix+KeyScores, string(raw)); err != nil {
		return nil, fmt.Errorf("write scores: %w", err)
	}
	return entries, nil
}

// HighScore returns the stored high score, 0 when none is stored. A corrupt
// value is an error so it is never silently replaced by a lower score.
func (l *Local) HighScore(ctx context.Context) (int64, error) {
	raw, ok, err := l.kv.Get(ctx, l.prefix+KeyHighScore)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode high score: %w", err)
	}
	return n, nil
}

// RecordHighScore stores score if it beats the current high score.
func (l *Local) RecordHighScore(ctx context.Context, score int64) (bool, error) {
	current, err := l.HighScore(ctx)
	if err != nil {
		return false, err
	}
	if score <= current {
		return false, nil
	}
	if err := l.kv.Set(ctx, l.prefix+KeyHighScore, strconv.FormatInt(score, 10)); err != nil {
		return false, fmt.Errorf("write high score: %w", err)
	}
	return true, nil
}

func (l *Local) TutorialSeen(ctx context.Context) (bool, error) {
	raw, ok, err := l.kv.Get(ctx, l.prefix+KeyTutorialSeen)
	if err != nil {
		return false, err
	}
	return ok && raw == "true", nil
}

func (l *Local) MarkTutorialSeen(ctx context.Context) error {
	return l.kv.Set(ctx, l.prefix+KeyTutorialSeen, "true")
}

// sortEntries orders by score descending. Ties keep insertion order, so an
// existing entry outranks a new one with the same score.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}
