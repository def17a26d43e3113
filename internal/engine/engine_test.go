package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/clock"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/store"
)

// recordingBroadcaster captures everything the engine emits.
type recordingBroadcaster struct {
	mu         sync.Mutex
	broadcasts []protocol.Event
	direct     map[string][]protocol.Event

	emptySince func(string) (time.Time, bool)
}

func newRecorder() *recordingBroadcaster {
	return &recordingBroadcaster{direct: make(map[string][]protocol.Event)}
}

func (r *recordingBroadcaster) BroadcastGame(gameID string, evt protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, evt)
}

func (r *recordingBroadcaster) SendTo(sessionID string, evt protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.direct[sessionID] = append(r.direct[sessionID], evt)
}

func (r *recordingBroadcaster) EmptySince(gameID string) (time.Time, bool) {
	if r.emptySince != nil {
		return r.emptySince(gameID)
	}
	return time.Time{}, false
}

func (r *recordingBroadcaster) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.broadcasts))
	for i, evt := range r.broadcasts {
		out[i] = evt.Type
	}
	return out
}

func (r *recordingBroadcaster) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = nil
	r.direct = make(map[string][]protocol.Event)
}

type testRig struct {
	eng *Engine
	bc  *recordingBroadcaster
	st  *store.MemoryStore
	now time.Time
	mu  sync.Mutex
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		bc:  newRecorder(),
		st:  store.NewMemory(),
		now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	rig.eng = New(rig.st, rig.bc, zap.NewNop())
	rig.eng.now = func() time.Time {
		rig.mu.Lock()
		defer rig.mu.Unlock()
		return rig.now
	}
	t.Cleanup(rig.eng.Shutdown)
	return rig
}

func (rig *testRig) advance(d time.Duration) {
	rig.mu.Lock()
	rig.now = rig.now.Add(d)
	rig.mu.Unlock()
}

func (rig *testRig) create(t *testing.T, opts game.CreateOptions) *game.State {
	t.Helper()
	st, err := rig.eng.Create(context.Background(), "sess-creator", CreateGame{
		Opts:     opts,
		PlayerID: "p-black",
		Username: "Alice",
	})
	require.NoError(t, err)
	return st
}

func (rig *testRig) submit(t *testing.T, gameID string, cmd Command) any {
	t.Helper()
	reply, err := rig.eng.Submit(context.Background(), gameID, "sess-test", cmd)
	require.NoError(t, err)
	return reply
}

func (rig *testRig) join(t *testing.T, gameID string) {
	t.Helper()
	rig.submit(t, gameID, JoinGame{PlayerID: "p-white", Username: "Bob"})
}

func (rig *testRig) state(t *testing.T, gameID string) *game.State {
	t.Helper()
	st, err := rig.st.GetGame(context.Background(), gameID)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

func standardOpts() game.CreateOptions {
	return game.CreateOptions{
		BoardSize:   19,
		TimeControl: clock.TimeControl{TimeControl: 10, ByoYomiPeriods: 3, ByoYomiTime: 30},
	}
}

func TestCreateThenJoinStartsGame(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())

	got := rig.state(t, st.ID)
	assert.Equal(t, game.StatusWaiting, got.Status)
	assert.Len(t, got.Players, 1)
	assert.Nil(t, got.LastMoveTime)

	rig.join(t, st.ID)

	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusPlaying, got.Status)
	require.Len(t, got.Players, 2)
	assert.Equal(t, board.White, got.Players[1].Color)
	require.NotNil(t, got.LastMoveTime, "clock starts when the second player sits")
	assert.Equal(t, board.Black, got.CurrentTurn)
}

func TestBlitzClockWaitsForFirstMove(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, game.CreateOptions{
		BoardSize:   9,
		GameType:    game.TypeBlitz,
		TimeControl: clock.TimeControl{TimePerMove: 10},
	})
	rig.join(t, st.ID)

	got := rig.state(t, st.ID)
	assert.Nil(t, got.LastMoveTime, "blitz clock only starts on the first stone")

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 4, Y: 4}, Color: board.Black, PlayerID: "p-black"})
	got = rig.state(t, st.ID)
	require.NotNil(t, got.LastMoveTime)
}

func TestMoveUpdatesStateAndEmitsInOrder(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)
	rig.bc.reset()

	rig.advance(5 * time.Second)
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})

	got := rig.state(t, st.ID)
	assert.Equal(t, board.Black, got.Board.StoneAt(board.Position{X: 3, Y: 3}))
	assert.Equal(t, board.White, got.CurrentTurn)
	require.Len(t, got.History, 1)
	assert.InDelta(t, 5.0, got.History[0].TimeSpentOnMove, 0.01)

	mover := got.PlayerByColor(board.Black)
	require.NotNil(t, mover)
	assert.InDelta(t, 595.0, mover.TimeRemaining, 0.01)

	assert.Equal(t, []string{
		protocol.EvtMoveMade,
		protocol.EvtGameState,
		protocol.EvtTimeUpdate,
	}, rig.bc.types())
}

func TestTurnAndPhaseRejections(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())

	// Not playing yet.
	_, err := rig.eng.Submit(context.Background(), st.ID, "", PlaceStone{
		Position: board.Position{X: 0, Y: 0}, Color: board.Black, PlayerID: "p-black",
	})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindWrongPhase, cmdErr.Kind)

	rig.join(t, st.ID)

	// White may not open.
	_, err = rig.eng.Submit(context.Background(), st.ID, "", PlaceStone{
		Position: board.Position{X: 0, Y: 0}, Color: board.White, PlayerID: "p-white",
	})
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindNotYourTurn, cmdErr.Kind)

	// Black may not move white's stones.
	_, err = rig.eng.Submit(context.Background(), st.ID, "", PlaceStone{
		Position: board.Position{X: 0, Y: 0}, Color: board.White, PlayerID: "p-black",
	})
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindUnauthorizedForColor, cmdErr.Kind)

	// A rejected command mutates nothing.
	got := rig.state(t, st.ID)
	assert.Empty(t, got.History)
}

func TestKernelRejectionReachesCaller(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 5, Y: 5}, Color: board.Black, PlayerID: "p-black"})

	_, err := rig.eng.Submit(context.Background(), st.ID, "", PlaceStone{
		Position: board.Position{X: 5, Y: 5}, Color: board.White, PlayerID: "p-white",
	})
	require.ErrorIs(t, err, board.ErrOccupied)
}

func TestUnknownGame(t *testing.T) {
	rig := newRig(t)
	_, err := rig.eng.Submit(context.Background(), "no-such-game", "", TimerTick{})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindUnknownGame, cmdErr.Kind)
}

func TestRejoinKeepsClock(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.advance(40 * time.Second)
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})

	// Alice drops and returns under a fresh identity.
	reply := rig.submit(t, st.ID, JoinGame{PlayerID: "p-black-2", Username: "Alice"})
	joined, ok := reply.(protocol.JoinedGamePayload)
	require.True(t, ok)
	assert.Equal(t, "p-black-2", joined.PlayerID)
	assert.False(t, joined.AsSpectator)

	got := rig.state(t, st.ID)
	require.Len(t, got.Players, 2, "rejoin must not add a seat")
	alice := got.PlayerByUsername("Alice")
	require.NotNil(t, alice)
	assert.Equal(t, "p-black-2", alice.ID)
	assert.InDelta(t, 560.0, alice.TimeRemaining, 0.01, "rejoin must not reset the clock")
	require.Len(t, got.History, 1)
	assert.Equal(t, "p-black-2", got.History[0].PlayerID, "history follows the re-linked id")
}

func TestSpectatorJoinAndGameFull(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	_, err := rig.eng.Submit(context.Background(), st.ID, "", JoinGame{PlayerID: "p3", Username: "Carol"})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindGameFull, cmdErr.Kind)

	reply := rig.submit(t, st.ID, JoinGame{PlayerID: "p3", Username: "Carol", AsSpectator: true})
	joined := reply.(protocol.JoinedGamePayload)
	assert.True(t, joined.AsSpectator)

	got := rig.state(t, st.ID)
	assert.Len(t, got.Players, 2, "spectators never take seats")
	require.Len(t, got.Spectators, 1)
	assert.True(t, got.Spectators[0].IsSpectator)

	// Spectators cannot move.
	_, err = rig.eng.Submit(context.Background(), st.ID, "", PlaceStone{
		Position: board.Position{X: 9, Y: 9}, Color: board.Black, PlayerID: "p3",
	})
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindUnauthorizedForColor, cmdErr.Kind)
}

func TestTwoPassesOpenScoring(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 15, Y: 15}, Color: board.White, PlayerID: "p-white"})
	rig.bc.reset()

	rig.submit(t, st.ID, PassTurn{Color: board.Black, PlayerID: "p-black"})
	got := rig.state(t, st.ID)
	assert.Equal(t, game.StatusPlaying, got.Status, "one pass does not end play")

	rig.submit(t, st.ID, PassTurn{Color: board.White, PlayerID: "p-white"})
	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusScoring, got.Status)
	assert.Nil(t, got.LastMoveTime, "no clock runs during scoring")
	assert.NotNil(t, got.Territory)
	assert.Contains(t, rig.bc.types(), protocol.EvtScoringPhaseStarted)
}

func TestScoringRoundTrip(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, game.CreateOptions{
		BoardSize:   5,
		Komi:        0.5,
		TimeControl: clock.TimeControl{TimeControl: 10},
	})
	rig.join(t, st.ID)

	// Black stakes out the board; white plays one doomed stone.
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 2, Y: 1}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 0, Y: 0}, Color: board.White, PlayerID: "p-white"})
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 2, Y: 3}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, PassTurn{Color: board.White, PlayerID: "p-white"})
	rig.submit(t, st.ID, PassTurn{Color: board.Black, PlayerID: "p-black"})

	got := rig.state(t, st.ID)
	require.Equal(t, game.StatusScoring, got.Status)

	// Mark the white stone dead.
	rig.submit(t, st.ID, ToggleDeadStone{Position: board.Position{X: 0, Y: 0}, PlayerID: "p-black"})
	got = rig.state(t, st.ID)
	assert.Contains(t, got.DeadStones, board.Position{X: 0, Y: 0})

	// Cancel wipes the markings and resumes play.
	rig.submit(t, st.ID, CancelScoring{})
	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusPlaying, got.Status)
	assert.Empty(t, got.DeadStones)

	// One more pass re-enters scoring: the earlier passes are still the
	// tail of the history.
	rig.submit(t, st.ID, PassTurn{Color: board.White, PlayerID: "p-white"})
	got = rig.state(t, st.ID)
	require.Equal(t, game.StatusScoring, got.Status)
	rig.submit(t, st.ID, ToggleDeadStone{Position: board.Position{X: 0, Y: 0}, PlayerID: "p-black"})
	rig.bc.reset()
	rig.submit(t, st.ID, ConfirmScore{PlayerID: "p-white"})

	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusFinished, got.Status)
	assert.Equal(t, board.Black, got.Winner)
	require.NotNil(t, got.Score)
	assert.Equal(t, 1, got.Score.DeadWhiteStones)
	assert.Contains(t, rig.bc.types(), protocol.EvtGameFinished)

	// Finished games accept no further scoring commands.
	_, err := rig.eng.Submit(context.Background(), st.ID, "", ConfirmScore{PlayerID: "p-black"})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindWrongPhase, cmdErr.Kind)
}

func TestResign(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)
	rig.bc.reset()

	rig.submit(t, st.ID, Resign{Color: board.White, PlayerID: "p-white"})

	got := rig.state(t, st.ID)
	assert.Equal(t, game.StatusFinished, got.Status)
	assert.Equal(t, board.Black, got.Winner)
	assert.Equal(t, "B+R", got.Result)
	assert.Equal(t, []string{
		protocol.EvtPlayerResigned,
		protocol.EvtGameFinished,
		protocol.EvtGameState,
	}, rig.bc.types())
}

func TestUndoReplaysPrefix(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 15, Y: 15}, Color: board.White, PlayerID: "p-white"})
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 16, Y: 3}, Color: board.Black, PlayerID: "p-black"})

	// White asks to rewind to before their own move.
	rig.submit(t, st.ID, RequestUndo{PlayerID: "p-white", MoveIndex: 1})
	got := rig.state(t, st.ID)
	require.NotNil(t, got.UndoRequest)

	// The requester may not accept their own request.
	_, err := rig.eng.Submit(context.Background(), st.ID, "", RespondUndo{PlayerID: "p-white", Accepted: true})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindInvalidCommand, cmdErr.Kind)

	rig.submit(t, st.ID, RespondUndo{PlayerID: "p-black", Accepted: true})

	got = rig.state(t, st.ID)
	assert.Nil(t, got.UndoRequest)
	require.Len(t, got.History, 1)
	assert.Equal(t, board.White, got.CurrentTurn, "the first undone move's color replays")
	assert.Equal(t, board.Black, got.Board.StoneAt(board.Position{X: 3, Y: 3}))
	assert.Equal(t, board.Color(""), got.Board.StoneAt(board.Position{X: 15, Y: 15}))
	assert.Equal(t, board.Color(""), got.Board.StoneAt(board.Position{X: 16, Y: 3}))
}

func TestUndoRejectedLeavesStateAlone(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, RequestUndo{PlayerID: "p-black", MoveIndex: 0})
	rig.submit(t, st.ID, RespondUndo{PlayerID: "p-white", Accepted: false})

	got := rig.state(t, st.ID)
	assert.Nil(t, got.UndoRequest)
	require.Len(t, got.History, 1)
	assert.Equal(t, board.Black, got.Board.StoneAt(board.Position{X: 3, Y: 3}))
}

func TestTimerTickDetectsTimeout(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, game.CreateOptions{
		BoardSize:   19,
		TimeControl: clock.TimeControl{TimeControl: 1}, // one minute, no byo-yomi
	})
	rig.join(t, st.ID)
	rig.bc.reset()

	rig.advance(30 * time.Second)
	rig.submit(t, st.ID, TimerTick{})
	got := rig.state(t, st.ID)
	assert.Equal(t, game.StatusPlaying, got.Status)

	rig.advance(31 * time.Second)
	rig.submit(t, st.ID, TimerTick{})
	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusFinished, got.Status)
	assert.Equal(t, board.White, got.Winner)
	assert.Equal(t, "W+T", got.Result)
	assert.Contains(t, rig.bc.types(), protocol.EvtPlayerTimeout)
}

func TestTimerTickProjectionDoesNotMutate(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.advance(20 * time.Second)
	rig.submit(t, st.ID, TimerTick{})

	got := rig.state(t, st.ID)
	black := got.PlayerByColor(board.Black)
	require.NotNil(t, black)
	assert.InDelta(t, 600.0, black.TimeRemaining, 0.01, "ticks never charge the committed clock")
}

func TestChatBroadcastsWithoutMutation(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)
	before := rig.state(t, st.ID)
	rig.bc.reset()

	rig.submit(t, st.ID, Chat{PlayerID: "p-black", Username: "Alice", Message: "nice move"})

	require.Len(t, rig.bc.broadcasts, 1)
	assert.Equal(t, protocol.EvtChatMessage, rig.bc.broadcasts[0].Type)
	payload, ok := rig.bc.broadcasts[0].Data.(protocol.ChatEventPayload)
	require.True(t, ok)
	assert.NotEmpty(t, payload.ID)
	assert.Equal(t, "nice move", payload.Message)

	after := rig.state(t, st.ID)
	assert.Equal(t, before.History, after.History)
	assert.Equal(t, before.Status, after.Status)
}

func TestRequestSyncRepliesDirectly(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)
	rig.bc.reset()

	_, err := rig.eng.Submit(context.Background(), st.ID, "sess-sync", RequestSync{PlayerID: "p-black"})
	require.NoError(t, err)

	assert.Empty(t, rig.bc.broadcasts, "sync is a private reply")
	events := rig.bc.direct["sess-sync"]
	require.NotEmpty(t, events)
	assert.Equal(t, protocol.EvtSyncGameState, events[0].Type)
	// One projected clock per seated player follows the snapshot.
	assert.Len(t, events, 3)
}

func TestBlitzBudgetFollowsTheTurn(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, game.CreateOptions{
		BoardSize:   9,
		GameType:    game.TypeBlitz,
		TimeControl: clock.TimeControl{TimePerMove: 10},
	})
	rig.join(t, st.ID)

	got := rig.state(t, st.ID)
	for _, p := range got.Players {
		assert.InDelta(t, 10.0, p.TimeRemaining, 0.01, "both seats start with the per-move budget")
	}

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 4, Y: 4}, Color: board.Black, PlayerID: "p-black"})
	got = rig.state(t, st.ID)
	white := got.PlayerByColor(board.White)
	require.NotNil(t, white)
	assert.InDelta(t, 10.0, white.TimeRemaining, 0.01, "the incoming player's budget renews at the toggle")

	// One second in, a tick projects 9s and must not forfeit anyone.
	rig.advance(time.Second)
	rig.bc.reset()
	rig.submit(t, st.ID, TimerTick{})
	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusPlaying, got.Status)
	require.NotEmpty(t, rig.bc.broadcasts)
	upd, ok := rig.bc.broadcasts[0].Data.(protocol.TimeUpdatePayload)
	require.True(t, ok)
	assert.InDelta(t, 9.0, upd.TimeRemaining, 0.01)

	// Past the budget the tick forfeits the player to move.
	rig.advance(10 * time.Second)
	rig.submit(t, st.ID, TimerTick{})
	got = rig.state(t, st.ID)
	assert.Equal(t, game.StatusFinished, got.Status)
	assert.Equal(t, board.Black, got.Winner)
	assert.Equal(t, "B+T", got.Result)
}

func TestReaperLeavesNeverAttachedGames(t *testing.T) {
	rig := newRig(t)
	rig.bc.emptySince = func(string) (time.Time, bool) { return time.Time{}, true }
	st := rig.create(t, standardOpts())
	ctx := context.Background()

	rig.eng.reapIdle(ctx)
	rig.state(t, st.ID)

	rig.advance(IdleGrace + time.Minute)
	rig.eng.reapIdle(ctx)

	// The stored game survives; only the local executor retires.
	got, err := rig.st.GetGame(ctx, st.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
	rig.eng.mu.Lock()
	_, live := rig.eng.executors[st.ID]
	rig.eng.mu.Unlock()
	assert.False(t, live)
}

func TestReaperPurgesOnlyAfterGrace(t *testing.T) {
	rig := newRig(t)
	emptyAt := rig.now
	rig.bc.emptySince = func(string) (time.Time, bool) { return emptyAt, true }
	st := rig.create(t, standardOpts())
	ctx := context.Background()

	rig.advance(IdleGrace - time.Minute)
	rig.eng.reapIdle(ctx)
	got, err := rig.st.GetGame(ctx, st.ID)
	require.NoError(t, err)
	assert.NotNil(t, got, "grace has not elapsed yet")

	rig.advance(2 * time.Minute)
	rig.eng.reapIdle(ctx)
	got, err = rig.st.GetGame(ctx, st.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUndoNotResolvableDuringScoring(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)

	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 3, Y: 3}, Color: board.Black, PlayerID: "p-black"})
	rig.submit(t, st.ID, RequestUndo{PlayerID: "p-black", MoveIndex: 0})
	rig.submit(t, st.ID, PassTurn{Color: board.White, PlayerID: "p-white"})
	rig.submit(t, st.ID, PassTurn{Color: board.Black, PlayerID: "p-black"})

	got := rig.state(t, st.ID)
	require.Equal(t, game.StatusScoring, got.Status)
	assert.Nil(t, got.UndoRequest, "entering scoring abandons the pending request")

	_, err := rig.eng.Submit(context.Background(), st.ID, "", RespondUndo{PlayerID: "p-white", Accepted: true})
	var cmdErr *protocol.CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, protocol.KindWrongPhase, cmdErr.Kind)

	got = rig.state(t, st.ID)
	assert.Len(t, got.History, 3)
}

func TestChatTruncatesOnRuneBoundary(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, standardOpts())
	rig.join(t, st.ID)
	rig.bc.reset()

	long := strings.Repeat("棋", 200) // 600 bytes
	rig.submit(t, st.ID, Chat{PlayerID: "p-black", Username: "Alice", Message: long})

	require.Len(t, rig.bc.broadcasts, 1)
	payload, ok := rig.bc.broadcasts[0].Data.(protocol.ChatEventPayload)
	require.True(t, ok)
	assert.LessOrEqual(t, len(payload.Message), 500)
	assert.True(t, utf8.ValidString(payload.Message))
	assert.Equal(t, strings.Repeat("棋", 166), payload.Message)
}

func TestCreateFailsWhenJoinCodesExhausted(t *testing.T) {
	rig := newRig(t)
	rig.eng.newCode = func() string { return "AAAAAA" }
	ctx := context.Background()

	first, err := rig.eng.Create(ctx, "", CreateGame{Opts: standardOpts(), PlayerID: "p1", Username: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", first.Code)

	// Every retry collides with the first game's code.
	_, err = rig.eng.Create(ctx, "", CreateGame{Opts: standardOpts(), PlayerID: "p2", Username: "Bob"})
	require.ErrorIs(t, err, store.ErrStore)

	// The first game's code still resolves to the first game.
	id, err := rig.st.GetSessionByCode(ctx, "AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)
}

func TestHandicapGameThroughEngine(t *testing.T) {
	rig := newRig(t)
	st := rig.create(t, game.CreateOptions{
		BoardSize:   19,
		GameType:    game.TypeHandicap,
		Handicap:    4,
		Komi:        6.5,
		TimeControl: clock.TimeControl{TimeControl: 10},
	})
	rig.join(t, st.ID)

	got := rig.state(t, st.ID)
	assert.Len(t, got.Board.Stones, 4)
	assert.Equal(t, 0.5, got.Komi)
	assert.Equal(t, board.White, got.CurrentTurn)

	// White opens in a handicap game.
	rig.submit(t, st.ID, PlaceStone{Position: board.Position{X: 9, Y: 9}, Color: board.White, PlayerID: "p-white"})
	got = rig.state(t, st.ID)
	assert.Equal(t, board.Black, got.CurrentTurn)
}
