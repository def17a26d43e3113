// Package engine is the authoritative session engine. Every game owns one
// executor goroutine; all commands for that game funnel through its inbox,
// so state transitions are serialized without locks. Each command is a full
// read-modify-write cycle against the store, which keeps any instance able
// to pick up any game.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/game"
	"github.com/weiqigo/server/internal/protocol"
	"github.com/weiqigo/server/internal/store"
)

const (
	// CommandDeadline is the soft budget for one command, queueing included.
	CommandDeadline = 5 * time.Second
	// ResyncInterval paces the periodic full-state broadcast piggybacked on
	// timer ticks, reconciling any client drift.
	ResyncInterval = 5 * time.Second
	// IdleGrace is how long a game may sit with zero live channels before
	// the reaper purges it from the store.
	IdleGrace = 5 * time.Minute

	reaperInterval = 30 * time.Second
	inboxDepth     = 64
	codeRetries    = 5
)

// Broadcaster fans events out to a game's session group or to a single
// channel. The connection hub implements it.
type Broadcaster interface {
	BroadcastGame(gameID string, evt protocol.Event)
	SendTo(sessionID string, evt protocol.Event)
	// EmptySince reports when the game's local group last went empty; ok is
	// false while any channel is attached.
	EmptySince(gameID string) (time.Time, bool)
}

// Engine routes commands to per-game executors and owns their lifecycle.
type Engine struct {
	store store.Store
	bc    Broadcaster
	log   *zap.Logger

	mu        sync.Mutex
	executors map[string]*executor

	now     func() time.Time
	newCode func() string
}

func New(st store.Store, bc Broadcaster, log *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		bc:        bc,
		log:       log,
		executors: make(map[string]*executor),
		now:       time.Now,
		newCode:   game.NewCode,
	}
}

type submission struct {
	ctx   context.Context
	sid   string // initiating channel, "" for internal commands
	cmd   Command
	reply chan outcome
}

type outcome struct {
	reply any
	err   error
}

// executor serializes all commands for one game.
type executor struct {
	gameID  string
	eng     *Engine
	inbox   chan submission
	stop    chan struct{}
	created time.Time

	// Executor-local projection memory so tick-driven byo-yomi events fire
	// once per transition instead of every tick.
	lastResync  time.Time
	tickByoYomi map[string]tickClockMark
}

type tickClockMark struct {
	inByoYomi   bool
	periodsLeft int
}

// Submit routes cmd to the executor for gameID, spawning one if needed, and
// waits for the outcome. sid is the initiating channel ("" for internal
// commands). The soft deadline covers queueing and execution.
func (e *Engine) Submit(ctx context.Context, gameID, sid string, cmd Command) (any, error) {
	if gameID == "" {
		return nil, protocol.NewError(protocol.KindUnknownGame, "missing game id")
	}
	ex := e.executorFor(gameID)

	ctx, cancel := context.WithTimeout(ctx, CommandDeadline)
	defer cancel()

	sub := submission{ctx: ctx, sid: sid, cmd: cmd, reply: make(chan outcome, 1)}
	select {
	case ex.inbox <- sub:
	case <-ctx.Done():
		return nil, protocol.NewError(protocol.KindTimeout, "command deadline exceeded")
	}

	select {
	case out := <-sub.reply:
		return out.reply, out.err
	case <-ctx.Done():
		return nil, protocol.NewError(protocol.KindTimeout, "command deadline exceeded")
	}
}

// Create allocates a new game, persists it, and spawns its executor. It is
// the one command that runs outside an executor: the game id does not exist
// until it completes. sid is the creating channel.
func (e *Engine) Create(ctx context.Context, sid string, cmd CreateGame) (*game.State, error) {
	creator := game.NewPlayer(cmd.PlayerID, cmd.Username, creatorColor(cmd.Opts), cmd.Opts.TimeControl)
	st := game.New(cmd.Opts, creator)

	// Join codes live in a shared namespace; regenerate on collision. A code
	// is only kept once the store confirms it is free, so an exhausted retry
	// budget fails the create instead of hijacking an existing code.
	st.Code = e.newCode()
	assigned := false
	for i := 0; i < codeRetries; i++ {
		taken, err := e.store.GetSessionByCode(ctx, st.Code)
		if err != nil {
			return nil, err
		}
		if taken == "" {
			assigned = true
			break
		}
		st.Code = e.newCode()
	}
	if !assigned {
		return nil, fmt.Errorf("%w: could not allocate a unique join code", store.ErrStore)
	}

	if err := e.setGame(ctx, st); err != nil {
		return nil, err
	}
	e.log.Info("對局已建立",
		zap.String("game", st.ID),
		zap.String("code", st.Code),
		zap.String("player", creator.ID),
		zap.Int("size", st.Board.Size),
		zap.String("rule", string(st.ScoringRule)),
	)

	e.executorFor(st.ID)

	if sid != "" {
		e.bc.SendTo(sid, protocol.Event{Type: protocol.EvtGameCreated, Data: protocol.GameCreatedPayload{
			GameID:   st.ID,
			Code:     st.Code,
			PlayerID: creator.ID,
		}})
		e.bc.SendTo(sid, gameStateEvent(st, protocol.EvtGameState))
	}
	return st, nil
}

func creatorColor(opts game.CreateOptions) board.Color {
	if opts.ColorPreference.Valid() {
		return opts.ColorPreference
	}
	return board.Black
}

func (e *Engine) executorFor(gameID string) *executor {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ex, ok := e.executors[gameID]; ok {
		return ex
	}
	ex := &executor{
		gameID:      gameID,
		eng:         e,
		inbox:       make(chan submission, inboxDepth),
		stop:        make(chan struct{}),
		created:     e.now(),
		tickByoYomi: make(map[string]tickClockMark),
	}
	e.executors[gameID] = ex
	go ex.run()
	return ex
}

func (e *Engine) dropExecutor(gameID string) {
	e.mu.Lock()
	ex, ok := e.executors[gameID]
	if ok {
		delete(e.executors, gameID)
	}
	e.mu.Unlock()
	if ok {
		close(ex.stop)
	}
}

// Shutdown stops every executor. In-flight commands finish; queued ones are
// drained with a store-error outcome.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	execs := make([]*executor, 0, len(e.executors))
	for id, ex := range e.executors {
		execs = append(execs, ex)
		delete(e.executors, id)
	}
	e.mu.Unlock()
	for _, ex := range execs {
		close(ex.stop)
	}
}

func (ex *executor) run() {
	log := ex.eng.log
	log.Debug("執行器啟動", zap.String("game", ex.gameID))
	for {
		select {
		case <-ex.stop:
			ex.drain()
			log.Debug("執行器停止", zap.String("game", ex.gameID))
			return
		case sub := <-ex.inbox:
			if sub.ctx.Err() != nil {
				continue // caller already gave up
			}
			reply, err := ex.execute(sub.ctx, sub.sid, sub.cmd)
			sub.reply <- outcome{reply: reply, err: err}
		}
	}
}

func (ex *executor) drain() {
	for {
		select {
		case sub := <-ex.inbox:
			sub.reply <- outcome{err: fmt.Errorf("%w: executor stopped", store.ErrStore)}
		default:
			return
		}
	}
}

// execute runs one read-modify-write cycle: load, apply, persist (retrying
// the write once), then emit events in the order apply produced them.
// Events are only released after a successful persist so clients never see
// state the store does not hold.
func (ex *executor) execute(ctx context.Context, sid string, cmd Command) (any, error) {
	e := ex.eng
	st, err := e.store.GetGame(ctx, ex.gameID)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, protocol.NewError(protocol.KindUnknownGame, "game not found")
	}

	res, err := ex.apply(st, sid, cmd, e.now())
	if err != nil {
		return nil, err
	}

	if res.mutated {
		if err := e.setGame(ctx, st); err != nil {
			e.log.Warn("狀態寫入失敗，重試一次",
				zap.String("game", ex.gameID),
				zap.Error(err),
			)
			if err = e.setGame(ctx, st); err != nil {
				return nil, err
			}
		}
	}

	for _, em := range res.emits {
		if em.to != "" {
			e.bc.SendTo(em.to, em.evt)
		} else {
			e.bc.BroadcastGame(ex.gameID, em.evt)
		}
	}
	return res.reply, nil
}

func (e *Engine) setGame(ctx context.Context, st *game.State) error {
	return e.store.SetGame(ctx, st)
}

// RunReaper purges games whose local session group has been empty past the
// grace period, and retires their executors. Blocks until ctx is done.
func (e *Engine) RunReaper(ctx context.Context) error {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.reapIdle(ctx)
		}
	}
}

func (e *Engine) reapIdle(ctx context.Context) {
	e.mu.Lock()
	execs := make([]*executor, 0, len(e.executors))
	for _, ex := range e.executors {
		execs = append(execs, ex)
	}
	e.mu.Unlock()

	for _, ex := range execs {
		id := ex.gameID
		since, ok := e.bc.EmptySince(id)
		if !ok {
			continue
		}
		if since.IsZero() {
			// No session ever attached here: any live channels belong to
			// another instance. Retire the local executor once the grace
			// passes and leave the stored game to its owning instance.
			if e.now().Sub(ex.created) >= IdleGrace {
				e.dropExecutor(id)
				e.log.Debug("閒置執行器已退場", zap.String("game", id))
			}
			continue
		}
		if e.now().Sub(since) < IdleGrace {
			continue
		}
		st, err := e.store.GetGame(ctx, id)
		if err != nil {
			e.log.Warn("閒置回收讀取失敗", zap.String("game", id), zap.Error(err))
			continue
		}
		code := ""
		if st != nil {
			code = st.Code
		}
		if err := e.store.DelGame(ctx, id, code); err != nil {
			e.log.Warn("閒置回收刪除失敗", zap.String("game", id), zap.Error(err))
			continue
		}
		e.dropExecutor(id)
		e.log.Info("閒置對局已回收", zap.String("game", id))
	}
}
