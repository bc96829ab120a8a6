package game

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/spacedog/spacedog/internal/scene"
	"github.com/spacedog/spacedog/internal/score"
	"github.com/spacedog/spacedog/internal/server"
	"github.com/spacedog/spacedog/internal/session"
)

const (
	defaultFrameInterval = 16 * time.Millisecond

	// Snapshot every 6th frame (~100ms at 60fps) to reduce bandwidth.
	snapshotEvery = 6

	localTimeout = 2 * time.Second
)

// Broadcaster delivers messages to one connected client.
type Broadcaster interface {
	SendTo(clientID string, msg server.WSMessage)
}

type Options struct {
	FrameInterval time.Duration
	// NewRoller supplies randomness for each new session; nil uses a
	// time-seeded source.
	NewRoller func() session.Roller
}

// outcome is work finished off the loop goroutine, applied back on it.
type outcome func(p *play)

type runner struct {
	id       string
	clientID string
	profile  string
	cancel   context.CancelFunc
	cmds     chan server.WSMessage
	results  chan outcome
}

// play is the state owned by one runner's loop goroutine. Nothing outside
// that goroutine touches it.
type play struct {
	r         *runner
	logger    *slog.Logger
	nav       *scene.Navigator
	local     *score.Local
	sess      *session.Session
	ledger    *SpawnLedger
	frames    int
	submitted bool
}

// Engine runs one game loop per connected client.
type Engine struct {
	sessions *Manager
	hub      Broadcaster
	scores   *score.Service
	metrics  *server.Metrics
	logger   *slog.Logger
	opts     Options
}

func NewEngine(scores *score.Service, hub Broadcaster, metrics *server.Metrics, logger *slog.Logger, opts Options) *Engine {
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = defaultFrameInterval
	}
	if metrics == nil {
		metrics = server.NewMetrics()
	}
	return &Engine{
		sessions: NewManager(),
		hub:      hub,
		scores:   scores,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// SetHub sets the WebSocket hub reference (used to break circular init).
func (e *Engine) SetHub(hub Broadcaster) {
	e.hub = hub
}

func (e *Engine) Sessions() *Manager { return e.sessions }

// HandleMessage implements server.MessageHandler.
func (e *Engine) HandleMessage(ctx context.Context, client *server.Client, msg server.WSMessage) {
	if msg.Type == "start" {
		e.Start(ctx, client.ID, client.Profile)
		return
	}
	r, ok := e.sessions.ByClient(client.ID)
	if !ok {
		e.sendError(client.ID, "no session, send start first")
		return
	}
	select {
	case r.cmds <- msg:
	default:
		e.logger.Warn("command dropped, buffer full", "session", r.id, "type", msg.Type)
	}
}

// HandleDisconnect implements server.MessageHandler.
func (e *Engine) HandleDisconnect(client *server.Client) {
	if r, ok := e.sessions.ByClient(client.ID); ok {
		r.cancel()
	}
}

// Start opens a session runner for a client. The runner lives until the
// client leaves, disconnects or ctx is cancelled.
func (e *Engine) Start(ctx context.Context, clientID, profile string) {
	rCtx, cancel := context.WithCancel(ctx)
	r := &runner{
		clientID: clientID,
		profile:  profile,
		cancel:   cancel,
		cmds:     make(chan server.WSMessage, 64),
		results:  make(chan outcome, 8),
	}
	if !e.sessions.Add(r) {
		cancel()
		e.sendError(clientID, "session already running")
		return
	}
	p, err := e.open(rCtx, r)
	if err != nil {
		e.sessions.Remove(r.id)
		cancel()
		e.logger.Error("open session", "client", clientID, "err", err)
		e.sendError(clientID, "could not load profile")
		return
	}
	e.metrics.IncrSessions()
	go e.runLoop(rCtx, p)
}

// open loads the profile and places the client on its first scene.
func (e *Engine) open(ctx context.Context, r *runner) (*play, error) {
	local := e.scores.Local(r.profile)
	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()
	seen, err := local.TutorialSeen(lctx)
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("session", r.id, "profile", r.profile)
	p := &play{
		r:      r,
		logger: logger,
		nav:    scene.NewNavigator(scene.Initial(seen), logger),
		local:  local,
	}
	e.send(p, "session_started", map[string]any{
		"session_id": r.id,
		"profile":    r.profile,
		"scene":      p.nav.Current(),
	})
	logger.Info("session opened", "scene", p.nav.Current().String())
	return p, nil
}

func (e *Engine) runLoop(ctx context.Context, p *play) {
	defer func() {
		e.metrics.DecrSessions()
		e.sessions.Remove(p.r.id)
		p.r.cancel()
		p.logger.Info("session closed")
	}()

	ticker := time.NewTicker(e.opts.FrameInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			e.tick(ctx, p, now.Sub(last))
			last = now

		case msg := <-p.r.cmds:
			if !e.handle(ctx, p, msg) {
				return
			}

		case out := <-p.r.results:
			out(p)
		}
	}
}

// tick feeds one frame of wall-clock time into the session. A frame spent
// counting down never advances the simulation clock, even the frame in which
// the countdown completes.
func (e *Engine) tick(ctx context.Context, p *play, delta time.Duration) {
	if p.sess == nil {
		return
	}
	if p.sess.State() == session.StateResumeCountdown {
		p.sess.AdvanceCountdown(delta)
	} else {
		p.sess.Frame(delta)
	}
	e.flush(ctx, p)

	p.frames++
	if p.frames%snapshotEvery == 0 && p.sess.State() != session.StateGameOver {
		e.send(p, "state", p.sess.Snapshot())
	}
}

// handle applies one client command. It returns false when the runner
// should stop.
func (e *Engine) handle(ctx context.Context, p *play, msg server.WSMessage) bool {
	switch msg.Type {
	case "leave":
		e.send(p, "left", nil)
		return false

	case "navigate":
		var payload struct {
			Scene string `json:"scene"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			e.sendError(p.r.clientID, "bad navigate payload")
			return true
		}
		e.navigate(ctx, p, payload.Scene)

	case "restart":
		e.navigate(ctx, p, scene.Game.String())

	case "submit_score":
		var payload struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			e.sendError(p.r.clientID, "bad submit_score payload")
			return true
		}
		e.submitScore(ctx, p, payload.Name)

	default:
		if err := e.control(p, msg); err != nil {
			e.sendError(p.r.clientID, err.Error())
		}
	}
	e.flush(ctx, p)
	return true
}

var (
	errNoGame      = errors.New("not in a game")
	errUnspawned   = errors.New("report does not match a spawned object")
	errUnknownType = errors.New("unknown message type")
)

// control applies in-game input to the session.
func (e *Engine) control(p *play, msg server.WSMessage) error {
	if p.sess == nil {
		return errNoGame
	}
	s := p.sess

	switch msg.Type {
	case "pause":
		s.Pause()
	case "resume":
		s.Resume()
	case "toggle_pause":
		s.TogglePause()

	case "pickup":
		var payload struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		pickup, err := session.ParsePickup(payload.Kind)
		if err != nil {
			return err
		}
		if s.State() != session.StateActive {
			return session.ErrNotActive
		}
		if !p.ledger.AllowPickup(pickup) {
			return errUnspawned
		}
		return s.Collect(pickup)

	case "enemy_destroyed":
		var payload struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return err
		}
		t, err := session.ParseEnemyType(payload.Type)
		if err != nil {
			return err
		}
		if s.State() != session.StateActive {
			return session.ErrNotActive
		}
		if !p.ledger.AllowKill(t) {
			return errUnspawned
		}
		_, err = s.EnemyDestroyed(t)
		return err

	case "player_hit":
		if s.State() != session.StateActive {
			return session.ErrNotActive
		}
		if !p.ledger.AllowHit() {
			return errUnspawned
		}
		_, err := s.PlayerHit()
		return err

	default:
		return errUnknownType
	}
	return nil
}

// flush broadcasts queued session events in emission order.
func (e *Engine) flush(ctx context.Context, p *play) {
	if p.sess == nil {
		return
	}
	for _, ev := range p.sess.Drain() {
		p.ledger.Observe(ev)
		e.send(p, "event", ev)
		if ev.Type == session.EventGameOver {
			e.gameOver(ctx, p)
		}
	}
}

func (e *Engine) gameOver(ctx context.Context, p *play) {
	e.metrics.IncrSessionsPlayed()
	c := p.sess.Context()
	if p.sess.NewHighScore() {
		lctx, cancel := context.WithTimeout(ctx, localTimeout)
		if _, err := p.local.RecordHighScore(lctx, c.Score); err != nil {
			p.logger.Error("record high score", "err", err)
		}
		cancel()
	}
	e.send(p, "game_over", map[string]any{
		"score":          c.Score,
		"level":          c.Level,
		"high_score":     c.HighScore,
		"new_high_score": p.sess.NewHighScore(),
	})
	enemies, powerups := p.ledger.Outstanding()
	p.logger.Info("game over", "score", c.Score, "level", c.Level,
		"unreported_enemies", enemies, "unreported_powerups", powerups)
}

// navigate moves the client between scenes. Entering Game always starts a
// fresh session, so Game→Game is a restart. An unknown target restarts too.
func (e *Engine) navigate(ctx context.Context, p *play, name string) {
	from := p.nav.Current()
	to, err := p.nav.Go(name)
	var unknown *scene.UnknownSceneError
	if err != nil && !errors.As(err, &unknown) {
		e.sendError(p.r.clientID, err.Error())
		return
	}

	if from == scene.HowToPlay && to == scene.Menu {
		lctx, cancel := context.WithTimeout(ctx, localTimeout)
		if err := p.local.MarkTutorialSeen(lctx); err != nil {
			p.logger.Error("mark tutorial seen", "err", err)
		}
		cancel()
	}

	switch {
	case to == scene.Game:
		e.newGame(ctx, p)
	case from == scene.Game:
		p.sess = nil
	}

	e.send(p, "scene", map[string]any{"scene": to})

	if to == scene.Leaderboard {
		e.loadStandings(ctx, p)
	}
}

func (e *Engine) newGame(ctx context.Context, p *play) {
	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	hs, err := p.local.HighScore(lctx)
	cancel()
	if err != nil {
		p.logger.Error("read high score", "err", err)
	}

	var roller session.Roller
	if e.opts.NewRoller != nil {
		roller = e.opts.NewRoller()
	}
	p.sess = session.New(session.Config{HighScore: hs, Roller: roller})
	p.ledger = NewSpawnLedger()
	p.frames = 0
	p.submitted = false
	e.send(p, "state", p.sess.Snapshot())
}

// submitScore writes the finished game's score locally on the loop, then
// publishes it globally in the background. The global result comes back
// through the runner's results channel.
func (e *Engine) submitScore(ctx context.Context, p *play, name string) {
	if p.sess == nil || p.sess.State() != session.StateGameOver {
		e.sendError(p.r.clientID, "no finished game to submit")
		return
	}
	if p.submitted {
		e.sendError(p.r.clientID, "score already submitted")
		return
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	entry, local, err := e.scores.Record(lctx, p.r.profile, name, p.sess.Context().Score)
	cancel()

	var verr *score.ValidationError
	if errors.As(err, &verr) {
		e.send(p, "score_error", map[string]string{"field": verr.Field, "reason": verr.Reason})
		return
	}
	if err != nil {
		p.logger.Error("save score", "err", err)
		e.sendError(p.r.clientID, "could not save score")
		return
	}

	p.submitted = true
	e.metrics.IncrScoresSubmitted()
	e.send(p, "score_saved", map[string]any{"entry": entry, "local": local})

	if !e.scores.GlobalConfigured() {
		return
	}
	results := p.r.results
	go func() {
		// The write must be attempted even if the client leaves meanwhile;
		// Publish bounds it with the store timeout.
		err := e.scores.Publish(context.WithoutCancel(ctx), entry)
		e.deliver(ctx, results, func(p *play) { e.published(p, err) })
	}()
}

func (e *Engine) published(p *play, err error) {
	if err != nil {
		e.metrics.IncrGlobalFailures()
		e.send(p, "score_global", map[string]any{"ok": false, "message": "Could not save score"})
		return
	}
	e.send(p, "score_global", map[string]any{"ok": true, "message": "Score saved"})
}

// loadStandings reads the leaderboard off the loop; the global read may take
// up to its timeout before falling back to local scores.
func (e *Engine) loadStandings(ctx context.Context, p *play) {
	results := p.r.results
	profile := p.r.profile
	go func() {
		st, err := e.scores.Standings(ctx, profile)
		e.deliver(ctx, results, func(p *play) { e.standings(p, st, err) })
	}()
}

func (e *Engine) standings(p *play, st score.Standings, err error) {
	if err != nil {
		p.logger.Error("read standings", "err", err)
		e.sendError(p.r.clientID, "could not load leaderboard")
		return
	}
	payload := map[string]any{
		"entries":          st.Entries,
		"source":           st.Source,
		"global_available": st.GlobalAvailable,
	}
	if st.Err != nil {
		e.metrics.IncrGlobalFailures()
		payload["error"] = "Global leaderboard unavailable, showing local scores"
	}
	e.send(p, "standings", payload)
}

func (e *Engine) deliver(ctx context.Context, results chan<- outcome, out outcome) {
	select {
	case results <- out:
	case <-ctx.Done():
	}
}

func (e *Engine) send(p *play, typ string, payload any) {
	if e.hub == nil {
		return
	}
	e.hub.SendTo(p.r.clientID, server.NewMessage(typ, payload))
}

func (e *Engine) sendError(clientID, msg string) {
	if e.hub == nil {
		return
	}
	e.hub.SendTo(clientID, server.NewMessage("error", map[string]string{"message": msg}))
}
