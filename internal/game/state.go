// Package game holds the authoritative per-session state model: the single
// GameState record that the session engine mutates and the store serializes.
package game

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/score"
)

// Status is the session lifecycle phase.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusScoring  Status = "scoring"
	StatusFinished Status = "finished"
)

// GameType selects the game variant; "blitz" switches the clock engine to
// the per-move budget.
type GameType string

const (
	TypeEven     GameType = "even"
	TypeHandicap GameType = "handicap"
	TypeBlitz    GameType = "blitz"
	TypeTeaching GameType = "teaching"
	TypeRengo    GameType = "rengo"
)

// Player is a seated player or a spectator.
type Player struct {
	ID       string      `json:"id"`
	Username string      `json:"username"`
	Color    board.Color `json:"color,omitempty"`
	clock.PlayerClock
	IsSpectator bool `json:"isSpectator"`
	IsAI        bool `json:"isAI"`
}

// Move is one committed history entry: a stone placement or a pass, with
// the mover's clock snapshot at commit time.
type Move struct {
	X                  int         `json:"x"`
	Y                  int         `json:"y"`
	Pass               bool        `json:"pass,omitempty"`
	Color              board.Color `json:"color"`
	PlayerID           string      `json:"playerId"`
	Timestamp          int64       `json:"timestamp"` // epoch millis
	TimeSpentOnMove    float64     `json:"timeSpentOnMove"`
	IsInByoYomi        bool        `json:"isInByoYomi"`
	ByoYomiTimeLeft    float64     `json:"byoYomiTimeLeft"`
	ByoYomiPeriodsLeft int         `json:"byoYomiPeriodsLeft"`
	CapturedCount      int         `json:"capturedCount"`
}

// UndoRequest is a pending request to rewind history to MoveIndex.
type UndoRequest struct {
	RequestedBy string `json:"requestedBy"`
	MoveIndex   int    `json:"moveIndex"`
}

// State is the single source of truth for one session. It is owned by the
// per-game executor; nothing else mutates it.
type State struct {
	ID   string `json:"id"`
	Code string `json:"code"`

	Status      Status      `json:"status"`
	Board       board.Board `json:"board"`
	CurrentTurn board.Color `json:"currentTurn"`

	Players    []*Player `json:"players"`
	Spectators []*Player `json:"spectators"`

	History        []Move              `json:"history"`
	CapturedStones map[board.Color]int `json:"capturedStones"` // captures BY that color
	KoPosition     *board.Position     `json:"koPosition,omitempty"`

	TimeControl clock.TimeControl `json:"timeControl"`
	GameType    GameType          `json:"gameType"`
	Handicap    int               `json:"handicap"`
	Komi        float64           `json:"komi"`
	ScoringRule score.Rule        `json:"scoringRule"`

	// LastMoveTime is the epoch millis the current turn's clock started.
	// Nil until the game starts; blitz games leave it nil until move one.
	LastMoveTime *int64 `json:"lastMoveTime"`

	LastMove              *board.Position `json:"lastMove,omitempty"`
	LastMoveColor         board.Color     `json:"lastMoveColor,omitempty"`
	LastMovePlayerID      string          `json:"lastMovePlayerId,omitempty"`
	LastMoveCapturedCount int             `json:"lastMoveCapturedCount"`

	// Territory has no omitempty: an empty map means "computed, all dame"
	// and must survive the store round-trip distinct from nil.
	DeadStones []board.Position       `json:"deadStones"`
	Territory  map[string]board.Color `json:"territory"`

	Score  *score.Result `json:"score,omitempty"`
	Winner board.Color   `json:"winner,omitempty"`
	Result string        `json:"result,omitempty"`

	UndoRequest *UndoRequest `json:"undoRequest,omitempty"`
}

// CreateOptions carries the client-chosen settings for a new game.
type CreateOptions struct {
	BoardSize       int               `json:"boardSize"`
	GameType        GameType          `json:"gameType"`
	Handicap        int               `json:"handicap"`
	Komi            float64           `json:"komi"`
	ScoringRule     score.Rule        `json:"scoringRule"`
	TimeControl     clock.TimeControl `json:"timeControl"`
	ColorPreference board.Color       `json:"colorPreference"`
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode returns a six-character human-readable join token. Ambiguous
// glyphs (I/O/0/1) are excluded; comparison is case-insensitive so the
// token is stored and matched upper-cased.
func NewCode() string {
	buf := make([]byte, 6)
	rand.Read(buf)
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// New builds the initial waiting-state game for the creating player.
// Handicap stones are pre-placed and white moves first in handicap games.
func New(opts CreateOptions, creator *Player) *State {
	size := opts.BoardSize
	if !board.ValidSize(size) {
		size = 19
	}
	rule := opts.ScoringRule
	if !rule.Valid() {
		rule = score.Japanese
	}
	gameType := opts.GameType
	if gameType == "" {
		gameType = TypeEven
	}

	s := &State{
		ID:             uuid.NewString(),
		Code:           NewCode(),
		Status:         StatusWaiting,
		Board:          board.New(size),
		CurrentTurn:    board.Black,
		Players:        []*Player{creator},
		Spectators:     []*Player{},
		History:        []Move{},
		CapturedStones: map[board.Color]int{board.Black: 0, board.White: 0},
		TimeControl:    opts.TimeControl,
		GameType:       gameType,
		Handicap:       0,
		Komi:           opts.Komi,
		ScoringRule:    rule,
		DeadStones:     []board.Position{},
	}

	if opts.Handicap >= 2 {
		s.Handicap = opts.Handicap
		s.Board.Stones = HandicapStones(size, opts.Handicap)
		if len(s.Board.Stones) > 0 {
			s.Komi = HandicapKomi(rule)
			s.CurrentTurn = board.White
		}
	}

	creator.PlayerClock = clock.NewPlayerClock(opts.TimeControl)
	return s
}

// NewPlayer returns a seated (non-spectator) player with a fresh clock.
func NewPlayer(id, username string, color board.Color, tc clock.TimeControl) *Player {
	if id == "" {
		id = uuid.NewString()
	}
	return &Player{
		ID:          id,
		Username:    username,
		Color:       color,
		PlayerClock: clock.NewPlayerClock(tc),
	}
}

// PlayerByID returns the seated player with the given id, or nil.
func (s *State) PlayerByID(id string) *Player {
	for _, p := range s.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PlayerByColor returns the seated player holding color, or nil.
func (s *State) PlayerByColor(c board.Color) *Player {
	for _, p := range s.Players {
		if p.Color == c {
			return p
		}
	}
	return nil
}

// PlayerByUsername returns the seated player with the given username, or
// nil. Used for rejoin matching.
func (s *State) PlayerByUsername(username string) *Player {
	for _, p := range s.Players {
		if p.Username == username {
			return p
		}
	}
	return nil
}

// SpectatorByID returns the spectator with the given id, or nil.
func (s *State) SpectatorByID(id string) *Player {
	for _, p := range s.Spectators {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// StartTurn starts the next player's clock at now.
func (s *State) StartTurn(now time.Time) {
	ms := now.UnixMilli()
	s.LastMoveTime = &ms
}

// Elapsed returns the think time since the current turn started, or zero
// when the clock has not started.
func (s *State) Elapsed(now time.Time) time.Duration {
	if s.LastMoveTime == nil {
		return 0
	}
	d := now.Sub(time.UnixMilli(*s.LastMoveTime))
	if d < 0 {
		return 0
	}
	return d
}

// Finish marks the game over with the given winner and compact result
// string (e.g. "B+R", "W+T", "B+5.5").
func (s *State) Finish(winner board.Color, result string) {
	s.Status = StatusFinished
	s.Winner = winner
	s.Result = result
	s.LastMoveTime = nil
	s.UndoRequest = nil
}

// TwoConsecutivePasses reports whether the last two history entries are
// both passes, the trigger for the scoring phase.
func (s *State) TwoConsecutivePasses() bool {
	n := len(s.History)
	return n >= 2 && s.History[n-1].Pass && s.History[n-2].Pass
}

// IsDead reports whether p is currently marked dead.
func (s *State) IsDead(p board.Position) bool {
	for _, d := range s.DeadStones {
		if d == p {
			return true
		}
	}
	return false
}
