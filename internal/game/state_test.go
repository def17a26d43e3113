package game

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/score"
)

func TestNewGameDefaults(t *testing.T) {
	creator := NewPlayer("p1", "Alice", board.Black, clock.TimeControl{TimeControl: 10})
	s := New(CreateOptions{
		BoardSize:   9,
		ScoringRule: score.Japanese,
		Komi:        6.5,
		TimeControl: clock.TimeControl{TimeControl: 10},
	}, creator)

	assert.Equal(t, StatusWaiting, s.Status)
	assert.Equal(t, board.Black, s.CurrentTurn)
	assert.Equal(t, 9, s.Board.Size)
	assert.Empty(t, s.Board.Stones)
	assert.Len(t, s.Players, 1)
	assert.Empty(t, s.Spectators)
	assert.Nil(t, s.LastMoveTime)
	assert.Equal(t, 600.0, creator.TimeRemaining)
	assert.Len(t, s.Code, 6)
}

func TestNewGameRejectsBadSizeAndRule(t *testing.T) {
	creator := NewPlayer("p1", "Alice", board.Black, clock.TimeControl{})
	s := New(CreateOptions{BoardSize: 4, ScoringRule: "klingon"}, creator)
	assert.Equal(t, 19, s.Board.Size)
	assert.Equal(t, score.Japanese, s.ScoringRule)
}

// Scenario: 19×19 handicap 4, japanese. Four corner star points are black,
// white moves first, komi reduced, history empty.
func TestHandicapSetup(t *testing.T) {
	creator := NewPlayer("p1", "Alice", board.Black, clock.TimeControl{})
	s := New(CreateOptions{
		BoardSize:   19,
		GameType:    TypeHandicap,
		Handicap:    4,
		Komi:        6.5,
		ScoringRule: score.Japanese,
	}, creator)

	assert.Equal(t, board.White, s.CurrentTurn)
	assert.Equal(t, 0.5, s.Komi)
	assert.Empty(t, s.History)

	want := map[board.Position]bool{
		{X: 3, Y: 3}: true, {X: 3, Y: 15}: true,
		{X: 15, Y: 3}: true, {X: 15, Y: 15}: true,
	}
	require.Len(t, s.Board.Stones, 4)
	for _, st := range s.Board.Stones {
		assert.True(t, want[st.Position], "unexpected handicap stone at %v", st.Position)
		assert.Equal(t, board.Black, st.Color)
	}
}

func TestHandicapStoneTables(t *testing.T) {
	cases := []struct {
		size, handicap, count int
	}{
		{19, 2, 2}, {19, 5, 5}, {19, 9, 9},
		{13, 6, 6}, {9, 4, 4},
		{19, 1, 0},  // below minimum
		{19, 10, 0}, // above maximum
		{11, 4, 0},  // size without a standard table
	}
	for _, c := range cases {
		assert.Len(t, HandicapStones(c.size, c.handicap), c.count,
			"size=%d handicap=%d", c.size, c.handicap)
	}

	// Odd handicaps include the center point.
	stones := HandicapStones(19, 5)
	found := false
	for _, st := range stones {
		if st.Position == (board.Position{X: 9, Y: 9}) {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCodeShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		code := NewCode()
		assert.Len(t, code, 6)
		assert.Equal(t, strings.ToUpper(code), code)
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "1")
	}
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "W+R", ResultString(board.White, "resign", 0))
	assert.Equal(t, "B+T", ResultString(board.Black, "timeout", 0))
	assert.Equal(t, "B+73.5", ResultString(board.Black, "score", 73.5))
	assert.Equal(t, "W+2", ResultString(board.White, "score", 2))
}

func TestTwoConsecutivePasses(t *testing.T) {
	s := &State{History: []Move{}}
	assert.False(t, s.TwoConsecutivePasses())
	s.History = append(s.History, Move{X: 4, Y: 4, Color: board.Black})
	s.History = append(s.History, Move{Pass: true, Color: board.White})
	assert.False(t, s.TwoConsecutivePasses())
	s.History = append(s.History, Move{Pass: true, Color: board.Black})
	assert.True(t, s.TwoConsecutivePasses())
}

func TestElapsed(t *testing.T) {
	s := &State{}
	now := time.Now()
	assert.Equal(t, time.Duration(0), s.Elapsed(now))

	s.StartTurn(now.Add(-3 * time.Second))
	assert.InDelta(t, 3.0, s.Elapsed(now).Seconds(), 0.01)

	// A clock start in the future (skew) never yields negative think time.
	s.StartTurn(now.Add(5 * time.Second))
	assert.Equal(t, time.Duration(0), s.Elapsed(now))
}

// Testable property: serializing a state and deserializing it yields an
// equal state.
func TestStateJSONRoundTrip(t *testing.T) {
	creator := NewPlayer("p1", "Alice", board.Black, clock.TimeControl{TimeControl: 10, ByoYomiPeriods: 3, ByoYomiTime: 30})
	s := New(CreateOptions{
		BoardSize:   9,
		GameType:    TypeEven,
		Komi:        6.5,
		ScoringRule: score.Japanese,
		TimeControl: clock.TimeControl{TimeControl: 10, ByoYomiPeriods: 3, ByoYomiTime: 30},
	}, creator)
	s.Players = append(s.Players, NewPlayer("p2", "Bob", board.White, s.TimeControl))
	s.Status = StatusPlaying
	s.StartTurn(time.Now())
	s.History = append(s.History, Move{X: 4, Y: 4, Color: board.Black, PlayerID: "p1", Timestamp: 123, TimeSpentOnMove: 2.5})
	s.Board.Stones = append(s.Board.Stones, board.Stone{Position: board.Position{X: 4, Y: 4}, Color: board.Black})
	s.KoPosition = &board.Position{X: 1, Y: 1}
	s.CapturedStones[board.White] = 2
	s.UndoRequest = &UndoRequest{RequestedBy: "p1", MoveIndex: 0}
	// All-dame preliminary territory: an empty map, not nil.
	s.Territory = map[string]board.Color{}

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back State
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *s, back)
	assert.NotNil(t, back.Territory, "a computed-but-empty territory survives the round trip")
}
