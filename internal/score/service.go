package score

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

const (
	DefaultReadTimeout  = 10 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// GlobalStore is the shared leaderboard. Reachability is not guaranteed.
type GlobalStore interface {
	Save(ctx context.Context, e Entry) error
	Top(ctx context.Context, n int) ([]Entry, error)
	Ping(ctx context.Context) error
}

// ConnectivityError wraps a failed or timed-out global store call.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("global store %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

const (
	SourceGlobal = "global"
	SourceLocal  = "local"
)

// Standings is what a leaderboard view shows.
type Standings struct {
	Entries         []Entry `json:"entries"`
	Source          string  `json:"source"`
	GlobalAvailable bool    `json:"global_available"`
	Err             error   `json:"-"`
}

// Receipt describes a completed submission. GlobalErr is non-fatal: the local
// write has already happened and is never rolled back.
type Receipt struct {
	Entry     Entry   `json:"entry"`
	Local     []Entry `json:"local"`
	Global    bool    `json:"global"`
	GlobalErr error   `json:"-"`
}

type Options struct {
	Limit        int
	ReadTimeout  time.Duration
	ProbeTimeout time.Duration
	Now          func() time.Time
}

type Service struct {
	kv        KV
	global    GlobalStore
	logger    *slog.Logger
	opts      Options
	available atomic.Bool
}

// NewService builds a score service. global may be nil for local-only mode.
func NewService(kv KV, global GlobalStore, logger *slog.Logger, opts Options) *Service {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Service{kv: kv, global: global, logger: logger, opts: opts}
	s.available.Store(global != nil)
	return s
}

func (s *Service) Local(profile string) *Local {
	return NewLocal(s.kv, profile, s.opts.Limit)
}

func (s *Service) GlobalConfigured() bool { return s.global != nil }

func (s *Service) GlobalAvailable() bool { return s.global != nil && s.available.Load() }

// Record validates and writes a submission to the profile's local store only.
func (s *Service) Record(ctx context.Context, profile, name string, score int64) (Entry, []Entry, error) {
	e, err := NewEntry(name, score, s.opts.Now())
	if err != nil {
		return Entry{}, nil, err
	}
	local, err := s.Local(profile).Add(ctx, e)
	if err != nil {
		return Entry{}, nil, fmt.Errorf("save local score: %w", err)
	}
	return e, local, nil
}

// Publish makes a single bounded write to the global store. There is no retry.
// A caller that gives up early does not cancel the write.
func (s *Service) Publish(ctx context.Context, e Entry) error {
	if s.global == nil {
		return nil
	}
	err := s.call(ctx, "save", s.opts.ReadTimeout, func(ctx context.Context) error {
		return s.global.Save(ctx, e)
	})
	switch {
	case err == nil:
	case IsConnectivity(err):
		s.logger.Warn("global score write failed", "name", e.Name, "score", e.Score, "err", err)
	default:
		s.logger.Debug("global score write left running", "name", e.Name, "score", e.Score, "err", err)
	}
	return err
}

// Submit records locally, then publishes globally when a global store is
// configured. Only validation and local failures are returned as errors.
func (s *Service) Submit(ctx context.Context, profile, name string, score int64) (Receipt, error) {
	e, local, err := s.Record(ctx, profile, name, score)
	if err != nil {
		return Receipt{}, err
	}
	r := Receipt{Entry: e, Local: local}
	if s.global != nil {
		r.GlobalErr = s.Publish(ctx, e)
		r.Global = r.GlobalErr == nil
	}
	return r, nil
}

// Standings reads the global top N, falling back to the profile's local list
// when the global store is unconfigured, disabled, slow or failing. A failed
// read disables global reads until the next successful Probe.
func (s *Service) Standings(ctx context.Context, profile string) (Standings, error) {
	var connErr error
	if s.GlobalAvailable() {
		var entries []Entry
		err := s.call(ctx, "read", s.opts.ReadTimeout, func(ctx context.Context) error {
			var err error
			entries, err = s.global.Top(ctx, s.opts.Limit)
			return err
		})
		if err == nil {
			sortEntries(entries)
			if entries == nil {
				entries = []Entry{}
			}
			return Standings{Entries: entries, Source: SourceGlobal, GlobalAvailable: true}, nil
		}
		if !IsConnectivity(err) {
			// The caller went away; that says nothing about the store.
			return Standings{}, err
		}
		s.available.Store(false)
		s.logger.Warn("global standings unavailable, using local", "err", err)
		connErr = err
	}

	local, err := s.Local(profile).Scores(ctx)
	if err != nil {
		return Standings{}, err
	}
	return Standings{Entries: local, Source: SourceLocal, GlobalAvailable: false, Err: connErr}, nil
}

// Probe checks global connectivity and re-enables or disables global reads.
func (s *Service) Probe(ctx context.Context) bool {
	if s.global == nil {
		return false
	}
	err := s.call(ctx, "ping", s.opts.ProbeTimeout, s.global.Ping)
	if err != nil && !IsConnectivity(err) {
		return s.available.Load()
	}
	ok := err == nil
	if prev := s.available.Swap(ok); prev != ok {
		if ok {
			s.logger.Info("global store reachable")
		} else {
			s.logger.Warn("global store unreachable", "err", err)
		}
	}
	return ok
}

// call runs fn with the store deadline. The store call does not inherit the
// caller's cancellation: a caller that goes away gets its own context error
// back while fn runs on until it returns or times out. A store that ignores
// its context is abandoned at the deadline and its result discarded.
func (s *Service) call(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)

	done := make(chan error, 1)
	go func() { done <- fn(storeCtx) }()

	select {
	case err := <-done:
		cancel()
		if err != nil {
			return &ConnectivityError{Op: op, Err: err}
		}
		return nil
	case <-storeCtx.Done():
		cancel()
		return &ConnectivityError{Op: op, Err: storeCtx.Err()}
	case <-ctx.Done():
		go func() {
			select {
			case <-done:
			case <-storeCtx.Done():
			}
			cancel()
		}()
		return ctx.Err()
	}
}

// IsConnectivity reports whether err came from the global store.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}
