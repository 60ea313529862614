package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/whisper/chatxp/internal/api"
	"github.com/whisper/chatxp/internal/chat"
	"github.com/whisper/chatxp/internal/metrics"
	"github.com/whisper/chatxp/internal/store"
)

// API is the subset of the remote API the manager depends on.
type API interface {
	CreateUser(ctx context.Context, username string) (api.User, error)
	Me(ctx context.Context, userID string) (api.User, error)
	JoinMatchmaking(ctx context.Context, userID string) error
	MatchStatus(ctx context.Context, userID string) (api.MatchStatus, error)
	Room(ctx context.Context, roomID string) (api.Room, error)
	SendMessage(ctx context.Context, roomID, senderID, content string) error
}

// Config holds polling and backoff tuning.
type Config struct {
	MatchPollInterval    time.Duration // matchmaking status poll
	ChatPollInterval     time.Duration // chat room poll
	ReconnectBaseDelay   time.Duration // doubled per consecutive failure
	ReconnectMaxDelay    time.Duration // backoff cap
	MaxReconnectAttempts int           // consecutive failures tolerated before giving up
	RequestTimeout       time.Duration // bound on one network operation
	StoreTimeout         time.Duration // bound on one persisted-id operation
}

// DefaultConfig returns the production intervals.
func DefaultConfig() Config {
	return Config{
		MatchPollInterval:    1 * time.Second,
		ChatPollInterval:     2 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    10 * time.Second,
		MaxReconnectAttempts: 6,
		RequestTimeout:       30 * time.Second,
		StoreTimeout:         2 * time.Second,
	}
}

// Option customises a Manager.
type Option func(*Manager)

// WithClock replaces the clock driving all timers.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) { m.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithBackoffObserver registers fn to be called on the loop each time a
// reconnect retry is scheduled.
func WithBackoffObserver(fn func(attempt int, delay time.Duration)) Option {
	return func(m *Manager) { m.onBackoff = fn }
}

// Manager drives one client session. Every state transition happens on the
// goroutine running Run; the exported methods only enqueue work for it and
// may be called from any goroutine.
type Manager struct {
	api   API
	store store.Store
	cfg   Config
	clock clock.Clock
	log   zerolog.Logger

	onBackoff func(attempt int, delay time.Duration)

	jobs chan func()
	done chan struct{}
	wg   sync.WaitGroup

	snapMu sync.RWMutex
	snap   State
	subMu  sync.Mutex
	subs   map[chan State]struct{}

	// Owned by the loop goroutine.
	ctx               context.Context
	state             State
	timers            *timerSet
	reconnectAttempts int
	creating          bool
	pollInFlight      bool
	pollGen           uint64
	userGen           uint64
	matchGen          uint64
	chatGen           uint64
	partnerID         string
	partnerName       string
	matchStarted      time.Time
}

// NewManager creates a Manager. Zero config fields fall back to DefaultConfig.
func NewManager(client API, st store.Store, cfg Config, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.MatchPollInterval <= 0 {
		cfg.MatchPollInterval = def.MatchPollInterval
	}
	if cfg.ChatPollInterval <= 0 {
		cfg.ChatPollInterval = def.ChatPollInterval
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}

	m := &Manager{
		api:   client,
		store: st,
		cfg:   cfg,
		clock: clock.New(),
		log:   zerolog.Nop(),
		jobs:  make(chan func(), 256),
		done:  make(chan struct{}),
		subs:  make(map[chan State]struct{}),
		state: Initial(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap = m.state
	m.timers = newTimerSet(m.clock)
	return m
}

// Run restores any persisted session and then processes actions, timer fires
// and network results until ctx is cancelled. On return every timer has been
// stopped and every in-flight request has finished.
func (m *Manager) Run(ctx context.Context) error {
	m.ctx = ctx
	m.initialize()

	for {
		select {
		case <-ctx.Done():
			m.cancelAll()
			close(m.done)
			m.wg.Wait()
			m.subMu.Lock()
			for ch := range m.subs {
				close(ch)
				delete(m.subs, ch)
			}
			m.subMu.Unlock()
			return nil
		case job := <-m.jobs:
			job()
		}
	}
}

// State returns the latest snapshot.
func (m *Manager) State() State {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// Subscribe returns a channel that receives the latest snapshot after every
// transition. Slow readers only miss intermediate snapshots. The channel is
// closed when Run returns or cancel is called.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	ch <- m.State()

	m.subMu.Lock()
	select {
	case <-m.done:
		m.subMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			if _, ok := m.subs[ch]; ok {
				delete(m.subs, ch)
				close(ch)
			}
			m.subMu.Unlock()
		})
	}
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

// StartUsernameEntry moves from the welcome screen to username entry.
func (m *Manager) StartUsernameEntry() {
	m.post(func() { m.dispatch(ScreenSet{Screen: ScreenUsername}) })
}

// SetUsername updates the username being typed.
func (m *Manager) SetUsername(name string) {
	m.post(func() { m.dispatch(UsernameSet{Username: name}) })
}

// CreateUser registers the current username and starts matchmaking.
func (m *Manager) CreateUser() {
	m.post(m.createUser)
}

// SubmitUsername sets the username and creates the user in one step.
func (m *Manager) SubmitUsername(name string) {
	m.post(func() {
		m.dispatch(UsernameSet{Username: name})
		m.createUser()
	})
}

// SetMessageInput updates the message being typed.
func (m *Manager) SetMessageInput(text string) {
	m.post(func() { m.dispatch(MessageInputSet{Text: text}) })
}

// SendMessage sends the current message input.
func (m *Manager) SendMessage() {
	m.post(m.sendMessage)
}

// Send sends text as a message. Blank text changes nothing.
func (m *Manager) Send(text string) {
	m.post(func() {
		if _, err := chat.ValidateMessage(text); errors.Is(err, chat.ErrEmpty) {
			return
		}
		m.dispatch(MessageInputSet{Text: text})
		m.sendMessage()
	})
}

// Next leaves the current partner and looks for a new one.
func (m *Manager) Next() {
	m.post(func() {
		if uid := m.state.UserID; uid != "" {
			m.startMatchmaking(uid)
		}
	})
}

// Disconnect ends the session and forgets the persisted identifier.
func (m *Manager) Disconnect() {
	m.post(m.disconnect)
}

// Retry clears the error and re-runs session restoration.
func (m *Manager) Retry() {
	m.post(m.retry)
}

// DismissStatus clears the connection status line.
func (m *Manager) DismissStatus() {
	m.post(func() { m.dispatch(ConnectionStatusSet{}) })
}

// ---------------------------------------------------------------------------
// Loop plumbing
// ---------------------------------------------------------------------------

func (m *Manager) post(fn func()) {
	select {
	case m.jobs <- fn:
	case <-m.done:
	}
}

func (m *Manager) dispatch(ev Event) {
	prev := m.state
	m.state = Reduce(m.state, ev)
	if prev.Screen != m.state.Screen {
		m.log.Debug().Str("from", string(prev.Screen)).Str("to", string(m.state.Screen)).Msg("[session] screen")
	}

	m.snapMu.Lock()
	m.snap = m.state
	m.snapMu.Unlock()

	m.subMu.Lock()
	for ch := range m.subs {
		offer(ch, m.state)
	}
	m.subMu.Unlock()
}

// offer replaces whatever snapshot is still unread in ch with s.
func offer(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}

// goAsync runs work off the loop and hands its result back to then on the
// loop. Results arriving after Run has returned are dropped.
func goAsync[T any](m *Manager, work func(ctx context.Context) (T, error), then func(T, error)) {
	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		rctx, cancel := context.WithTimeout(ctx, m.cfg.RequestTimeout)
		v, err := work(rctx)
		cancel()
		m.post(func() { then(v, err) })
	}()
}

// fire adapts fn into a timer callback that runs fn on the loop only while
// the timer is still the live timer of its kind.
func (m *Manager) fire(kind timerKind, fn func()) func(id uint64) {
	return func(id uint64) {
		m.post(func() {
			if m.timers.claim(kind, id) {
				fn()
			}
		})
	}
}

func (m *Manager) cancelAll() {
	m.timers.stopAll()
}

func (m *Manager) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.cfg.StoreTimeout)
}

func (m *Manager) forgetUser() {
	ctx, cancel := m.storeCtx()
	defer cancel()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Warn().Err(err).Msg("[session] clear stored user id failed")
	}
}

func errMessage(err error, fallback string) string {
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

// ---------------------------------------------------------------------------
// Flows
// ---------------------------------------------------------------------------

// initialize restores a persisted session. It reports whether a restore was
// started.
func (m *Manager) initialize() bool {
	ctx, cancel := m.storeCtx()
	id, err := m.store.Load(ctx)
	cancel()
	if err != nil {
		m.log.Warn().Err(err).Msg("[session] load stored user id failed")
		return false
	}
	if id == "" {
		return false
	}

	gen := m.userGen
	m.dispatch(ConnectionStatusSet{Status: MsgRestoring})
	m.log.Info().Str("user_id", id).Msg("[session] restoring session")

	goAsync(m, func(ctx context.Context) (api.User, error) {
		return m.api.Me(ctx, id)
	}, func(u api.User, err error) {
		if gen != m.userGen {
			return
		}
		if err != nil {
			m.log.Warn().Err(err).Str("user_id", id).Msg("[session] restore failed")
			m.restoreFailed()
			return
		}
		if u.ID == "" {
			u.ID = id
		}
		if u.Username != "" {
			m.dispatch(UsernameSet{Username: u.Username})
		}
		m.dispatch(UserCreated{UserID: u.ID})

		if u.Matched() {
			m.dispatch(ChatResumed{RoomID: u.RoomID, UserID: u.ID})
			m.loadRoomThenPoll(u.RoomID, u.ID, true)
			return
		}
		// Not matched: let the user re-join from the username screen.
		m.dispatch(ScreenSet{Screen: ScreenUsername})
	})
	return true
}

// invalidate stops every timer and discards the results of every flow still
// running, including a pending user creation.
func (m *Manager) invalidate() {
	m.cancelAll()
	m.userGen++
	m.matchGen++
	m.chatGen++
	m.creating = false
	m.pollInFlight = false
}

func (m *Manager) restoreFailed() {
	m.invalidate()
	m.forgetUser()
	m.dispatch(RestoreFailed{})
}

func (m *Manager) retry() {
	m.dispatch(ErrorSet{})
	m.dispatch(ConnectionStatusSet{Status: MsgRetrying})
	m.invalidate()
	if !m.initialize() {
		m.dispatch(ConnectionStatusSet{})
	}
}

func (m *Manager) createUser() {
	if m.creating {
		return
	}
	name, err := chat.ValidateUsername(m.state.Username)
	if err != nil {
		if errors.Is(err, chat.ErrEmpty) {
			m.dispatch(ErrorSet{Message: MsgEnterUsername})
		} else {
			m.dispatch(ErrorSet{Message: err.Error()})
		}
		return
	}

	m.creating = true
	gen := m.userGen
	m.dispatch(UserCreationStarted{})

	goAsync(m, func(ctx context.Context) (api.User, error) {
		return m.api.CreateUser(ctx, name)
	}, func(u api.User, err error) {
		if gen != m.userGen {
			return
		}
		m.creating = false
		if err != nil {
			m.log.Warn().Err(err).Msg("[session] create user failed")
			m.dispatch(ErrorSet{Message: errMessage(err, MsgCreateUserFailed)})
			return
		}

		ctx, cancel := m.storeCtx()
		if err := m.store.Save(ctx, u.ID); err != nil {
			m.log.Warn().Err(err).Msg("[session] persist user id failed")
		}
		cancel()

		m.log.Info().Str("user_id", u.ID).Str("username", name).Msg("[session] user created")
		m.dispatch(UserCreated{UserID: u.ID})
		m.startMatchmaking(u.ID)
	})
}

func (m *Manager) startMatchmaking(uid string) {
	m.cancelAll()
	m.matchGen++
	m.chatGen++
	gen := m.matchGen
	m.partnerID, m.partnerName = "", ""
	m.dispatch(MatchmakingStarted{})
	m.matchStarted = m.clock.Now()

	goAsync(m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.api.JoinMatchmaking(ctx, uid)
	}, func(_ struct{}, err error) {
		if gen != m.matchGen {
			return
		}
		if err != nil {
			m.log.Warn().Err(err).Str("user_id", uid).Msg("[session] join matchmaking failed")
			m.dispatch(ErrorSet{Message: errMessage(err, MsgJoinFailed)})
			return
		}
		m.checkMatch(uid, gen)
		m.timers.every(timerMatchmaking, m.cfg.MatchPollInterval, m.fire(timerMatchmaking, func() {
			m.checkMatch(uid, gen)
		}))
	})
}

func (m *Manager) checkMatch(uid string, gen uint64) {
	if gen != m.matchGen {
		return
	}
	goAsync(m, func(ctx context.Context) (api.MatchStatus, error) {
		return m.api.MatchStatus(ctx, uid)
	}, func(st api.MatchStatus, err error) {
		if gen != m.matchGen {
			return
		}
		if err != nil {
			// Transient; the next tick tries again.
			m.log.Debug().Err(err).Msg("[session] match status failed")
			return
		}
		if !st.Matched() {
			return
		}

		m.timers.stop(timerMatchmaking)
		m.matchGen++
		metrics.MatchWait.Observe(m.clock.Since(m.matchStarted).Seconds())
		m.log.Info().Str("user_id", uid).Str("room_id", st.RoomID).Msg("[session] match found")

		m.dispatch(MatchFound{RoomID: st.RoomID})
		m.loadRoomThenPoll(st.RoomID, uid, false)
	})
}

// roomResult is one room snapshot plus the partner lookup made with it.
type roomResult struct {
	room        api.Room
	partnerID   string
	partnerName string
}

// fetchRoom loads the room and, when the partner is not yet known, resolves
// the partner's username. A failed partner lookup is not an error.
func (m *Manager) fetchRoom(roomID, uid string, then func(roomResult, error)) {
	knownID, knownName := m.partnerID, m.partnerName
	goAsync(m, func(ctx context.Context) (roomResult, error) {
		room, err := m.api.Room(ctx, roomID)
		if err != nil {
			return roomResult{}, err
		}
		res := roomResult{room: room, partnerID: chat.PartnerID(room.ParticipantIDs, uid)}
		if res.partnerID == "" {
			return res, nil
		}
		if res.partnerID == knownID && knownName != "" {
			res.partnerName = knownName
			return res, nil
		}
		partner, err := m.api.Me(ctx, res.partnerID)
		if err != nil {
			m.log.Debug().Err(err).Str("partner_id", res.partnerID).Msg("[session] partner lookup failed")
			return res, nil
		}
		res.partnerName = partner.Username
		return res, nil
	}, then)
}

// roomLoaded applies a successful snapshot. Any successful room fetch counts
// as a healthy connection.
func (m *Manager) roomLoaded(uid string, res roomResult) {
	if n := countFrom(res.room.Messages, uid) - countFrom(m.state.Messages, uid); n > 0 {
		metrics.MessagesTotal.WithLabelValues("received").Add(float64(n))
	}
	m.reconnectAttempts = 0
	metrics.ReconnectAttempts.Set(0)

	m.dispatch(RoomLoaded{Messages: res.room.Messages})
	if res.partnerName != "" {
		m.partnerID, m.partnerName = res.partnerID, res.partnerName
		if m.state.PartnerUsername != res.partnerName {
			m.dispatch(PartnerResolved{Username: res.partnerName})
		}
	}
	m.dispatch(PollSucceeded{})
}

// countFrom counts messages not sent by uid.
func countFrom(msgs []chat.Message, uid string) int {
	n := 0
	for _, msg := range msgs {
		if msg.SenderID != uid {
			n++
		}
	}
	return n
}

// loadRoomThenPoll fetches the room once and then starts chat polling. When
// restoring, a failed first fetch abandons the stored session instead.
func (m *Manager) loadRoomThenPoll(roomID, uid string, restoring bool) {
	m.chatGen++
	gen := m.chatGen
	m.fetchRoom(roomID, uid, func(res roomResult, err error) {
		if gen != m.chatGen {
			return
		}
		if err != nil && restoring {
			m.log.Warn().Err(err).Str("room_id", roomID).Msg("[session] restore room fetch failed")
			m.restoreFailed()
			return
		}
		if err == nil {
			m.roomLoaded(uid, res)
		}
		m.startPolling(roomID, uid, gen)
		if err != nil {
			m.pollFailed(roomID, uid, gen, err)
		}
	})
}

func (m *Manager) startPolling(roomID, uid string, gen uint64) {
	m.timers.stop(timerReconnect)
	m.timers.every(timerChatPoll, m.cfg.ChatPollInterval, m.fire(timerChatPoll, func() {
		m.poll(roomID, uid, gen)
	}))
}

func (m *Manager) poll(roomID, uid string, gen uint64) {
	if gen != m.chatGen {
		return
	}
	if m.pollInFlight && m.pollGen == gen {
		return
	}
	m.pollInFlight, m.pollGen = true, gen

	m.fetchRoom(roomID, uid, func(res roomResult, err error) {
		if m.pollGen == gen {
			m.pollInFlight = false
		}
		if gen != m.chatGen {
			return
		}
		if err != nil {
			m.pollFailed(roomID, uid, gen, err)
			return
		}
		m.roomLoaded(uid, res)
	})
}

func (m *Manager) pollFailed(roomID, uid string, gen uint64, err error) {
	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	metrics.PollFailuresTotal.Inc()
	metrics.ReconnectAttempts.Set(float64(attempt))

	if attempt > m.cfg.MaxReconnectAttempts {
		m.log.Error().Err(err).Str("room_id", roomID).Int("attempts", attempt).Msg("[session] connection lost")
		metrics.ConnectionLostTotal.Inc()
		m.cancelAll()
		m.chatGen++
		m.dispatch(ConnectionLost{})
		return
	}

	delay := ReconnectDelay(attempt, m.cfg.ReconnectBaseDelay, m.cfg.ReconnectMaxDelay)
	m.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("[session] poll failed")
	m.dispatch(PollFailed{Attempt: attempt, Max: m.cfg.MaxReconnectAttempts})

	m.timers.after(timerReconnect, delay, m.fire(timerReconnect, func() {
		m.poll(roomID, uid, gen)
	}))
	if m.onBackoff != nil {
		m.onBackoff(attempt, delay)
	}
}

func (m *Manager) sendMessage() {
	roomID, uid := m.state.RoomID, m.state.UserID
	text, err := chat.ValidateMessage(m.state.MessageInput)
	if errors.Is(err, chat.ErrEmpty) || roomID == "" || uid == "" {
		return
	}
	if err != nil {
		m.dispatch(ErrorSet{Message: err.Error()})
		return
	}

	msg := chat.Message{
		LocalID:   "local-" + uuid.NewString(),
		SenderID:  uid,
		Content:   text,
		Timestamp: chat.Timestamp(m.clock.Now().UnixMilli()),
	}
	m.dispatch(MessageQueued{Message: msg})
	gen := m.chatGen

	goAsync(m, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, m.api.SendMessage(ctx, roomID, uid, text)
	}, func(_ struct{}, err error) {
		// Results for a room the user already left are dropped.
		if m.state.RoomID != roomID || m.state.UserID != uid {
			return
		}
		if err != nil {
			metrics.MessagesTotal.WithLabelValues("failed").Inc()
			m.log.Warn().Err(err).Str("room_id", roomID).Msg("[session] send failed")
			m.dispatch(MessageFailed{LocalID: msg.LocalID, Error: MsgSendFailed})
			return
		}
		metrics.MessagesTotal.WithLabelValues("sent").Inc()
		m.dispatch(MessageSent{LocalID: msg.LocalID})

		m.fetchRoom(roomID, uid, func(res roomResult, err error) {
			if gen != m.chatGen {
				return
			}
			if err != nil {
				m.log.Debug().Err(err).Msg("[session] refresh after send failed")
				return
			}
			m.roomLoaded(uid, res)
		})
	})
}

func (m *Manager) disconnect() {
	m.invalidate()
	m.reconnectAttempts = 0
	metrics.ReconnectAttempts.Set(0)
	m.partnerID, m.partnerName = "", ""
	m.forgetUser()
	m.log.Info().Msg("[session] disconnected")
	m.dispatch(Disconnected{})
}
