// Package scene holds the client's scene graph as an explicit navigation table.
package scene

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

type Scene int

const (
	Boot Scene = iota
	Preload
	HowToPlay
	Menu
	Game
	Leaderboard
)

var names = map[Scene]string{
	Boot:        "boot",
	Preload:     "preload",
	HowToPlay:   "how_to_play",
	Menu:        "menu",
	Game:        "game",
	Leaderboard: "leaderboard",
}

func (s Scene) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "unknown"
}

func (s Scene) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Scene) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// table maps each scene to the scenes it may navigate to.
var table = map[Scene][]Scene{
	Boot:        {Preload},
	Preload:     {Menu, HowToPlay},
	HowToPlay:   {Menu},
	Menu:        {Game, HowToPlay, Leaderboard},
	Game:        {Game, Menu},
	Leaderboard: {Menu},
}

var ErrTransitionNotAllowed = errors.New("scene transition not allowed")

// UnknownSceneError is returned when a navigation target does not exist.
type UnknownSceneError struct {
	Name string
}

func (e *UnknownSceneError) Error() string {
	return fmt.Sprintf("unknown scene %q", e.Name)
}

// Parse resolves a scene name. It accepts "menu", "Menu", "MenuScene",
// "how_to_play" and "HowToPlayScene" alike.
func Parse(name string) (Scene, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimSuffix(key, "scene")
	key = strings.ReplaceAll(key, "_", "")
	for s, n := range names {
		if strings.ReplaceAll(n, "_", "") == key {
			return s, nil
		}
	}
	return 0, &UnknownSceneError{Name: name}
}

// Allowed reports whether from→to is in the navigation table.
func Allowed(from, to Scene) bool {
	for _, s := range table[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Initial is the first scene after Preload: the tutorial until it has been seen.
func Initial(tutorialSeen bool) Scene {
	if tutorialSeen {
		return Menu
	}
	return HowToPlay
}

// Navigator tracks the current scene of one client.
type Navigator struct {
	current Scene
	logger  *slog.Logger
}

func NewNavigator(start Scene, logger *slog.Logger) *Navigator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{current: start, logger: logger}
}

func (n *Navigator) Current() Scene { return n.current }

// Go navigates to the named scene. Unknown targets fall back to Game, which
// restarts the session, and return an UnknownSceneError alongside the
// fallback. Known targets outside the table leave the navigator unchanged.
func (n *Navigator) Go(name string) (Scene, error) {
	target, err := Parse(name)
	if err != nil {
		n.logger.Warn("scene not found, restarting game instead", "scene", name)
		n.current = Game
		return Game, err
	}
	if !Allowed(n.current, target) {
		return n.current, fmt.Errorf("%s → %s: %w", n.current, target, ErrTransitionNotAllowed)
	}
	n.current = target
	return target, nil
}
