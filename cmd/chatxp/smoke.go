package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/whisper/chatxp/internal/session"
	"github.com/whisper/chatxp/internal/store"
)

var flagSmokeTimeout time.Duration

var smokeCmd = &cobra.Command{
	Use:   "smoke",
	Short: "Run a two-user end-to-end check against the API",
	Long: `smoke starts two headless sessions with in-memory stores, lets both
register and match, sends a message from one to the other and ends the chat.
It exits non-zero if any required step fails.`,
	RunE: runSmoke,
}

func init() {
	smokeCmd.Flags().DurationVar(&flagSmokeTimeout, "timeout", 60*time.Second, "global test timeout")
}

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

type stepResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r stepResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

// summarize prints every result and reports whether all required steps passed.
func summarize(w io.Writer, results []stepResult) bool {
	fmt.Fprintln(w)
	passed, failed, info := 0, 0, 0
	for _, r := range results {
		fmt.Fprintf(w, "[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Fprintf(w, " (%s)", r.detail)
		}
		fmt.Fprintln(w)

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			info++
		}
	}

	fmt.Fprintf(w, "\n=== Results: %d/%d passed", passed, passed+failed)
	if info > 0 {
		fmt.Fprintf(w, ", %d info", info)
	}
	fmt.Fprintln(w, " ===")
	return failed == 0
}

// ---------------------------------------------------------------------------
// Command
// ---------------------------------------------------------------------------

func runSmoke(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "=== ChatXP smoke test ===")
	fmt.Fprintf(out, "API: %s\n", cfg.APIURL)

	ctx, cancel := context.WithTimeout(cmd.Context(), flagSmokeTimeout)
	defer cancel()

	client := newAPIClient(cfg, logger)
	newPeer := func(name string) *peer {
		m := session.NewManager(client, store.NewMemoryStore(""), session.DefaultConfig(),
			session.WithLogger(logger.With().Str("peer", name).Logger()))
		return startPeer(ctx, name, m)
	}
	alice, bob := newPeer("alice"), newPeer("bob")
	defer alice.stop()
	defer bob.stop()

	if !summarize(out, smokeSteps(ctx, alice, bob, logger)) {
		return fmt.Errorf("smoke test failed")
	}
	return nil
}

// peer is one headless session.
type peer struct {
	name   string
	m      *session.Manager
	cancel context.CancelFunc
	done   chan struct{}
}

func startPeer(ctx context.Context, name string, m *session.Manager) *peer {
	ctx, cancel := context.WithCancel(ctx)
	p := &peer{name: name, m: m, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		_ = m.Run(ctx)
	}()
	return p
}

func (p *peer) stop() {
	p.cancel()
	<-p.done
}

// await blocks until cond holds for the peer's state, returning the
// matching state, or fails when ctx ends or the session reports an error.
func (p *peer) await(ctx context.Context, d time.Duration, cond func(session.State) bool) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	snaps, unsubscribe := p.m.Subscribe()
	defer unsubscribe()
	for {
		select {
		case s, ok := <-snaps:
			if !ok {
				return s, fmt.Errorf("%s: session stopped", p.name)
			}
			if cond(s) {
				return s, nil
			}
			if s.Error != "" {
				return s, fmt.Errorf("%s: %s", p.name, s.Error)
			}
		case <-ctx.Done():
			return p.m.State(), fmt.Errorf("%s: %w", p.name, ctx.Err())
		}
	}
}

// smokeSteps runs the scenario in order. A failed required step stops the run.
func smokeSteps(ctx context.Context, alice, bob *peer, logger zerolog.Logger) []stepResult {
	var results []stepResult
	fail := func(name string, err error) []stepResult {
		logger.Debug().Err(err).Str("step", name).Msg("[smoke] step failed")
		return append(results, stepResult{name, resultFail, err.Error()})
	}

	// Step 1: both users register and enter matchmaking.
	name := "Step 1: Create users"
	for _, p := range []*peer{alice, bob} {
		p.m.SubmitUsername(p.name)
	}
	var ids [2]string
	for i, p := range []*peer{alice, bob} {
		s, err := p.await(ctx, 15*time.Second, func(s session.State) bool {
			return s.UserID != "" && (s.Screen == session.ScreenSearching || s.Screen == session.ScreenChat)
		})
		if err != nil {
			return fail(name, err)
		}
		ids[i] = s.UserID
	}
	results = append(results, stepResult{name, resultPass, fmt.Sprintf("alice=%s, bob=%s", truncateID(ids[0]), truncateID(ids[1]))})

	// Step 2: the two are matched with each other.
	name = "Step 2: Matching"
	inChat := func(s session.State) bool { return s.Screen == session.ScreenChat && s.IsConnected }
	sa, err := alice.await(ctx, 30*time.Second, inChat)
	if err != nil {
		return fail(name, err)
	}
	sb, err := bob.await(ctx, 30*time.Second, inChat)
	if err != nil {
		return fail(name, err)
	}
	if sa.RoomID != sb.RoomID {
		// Another client on the shared service took one of them.
		return append(results, stepResult{name, resultFail,
			fmt.Sprintf("different rooms: %s vs %s", truncateID(sa.RoomID), truncateID(sb.RoomID))})
	}
	results = append(results, stepResult{name, resultPass, "room=" + truncateID(sa.RoomID)})

	// Step 3: partner names resolve.
	name = "Step 3: Partner names"
	sa, errA := alice.await(ctx, 10*time.Second, func(s session.State) bool { return s.PartnerUsername == "bob" })
	_, errB := bob.await(ctx, 10*time.Second, func(s session.State) bool { return s.PartnerUsername == "alice" })
	if errA != nil || errB != nil {
		results = append(results, stepResult{name, resultInfo, fmt.Sprintf("alice sees %q", sa.PartnerUsername)})
	} else {
		results = append(results, stepResult{name, resultPass, ""})
	}

	// Step 4: a message from alice reaches bob exactly once.
	name = "Step 4: Chat message"
	text := fmt.Sprintf("hi from smoke %d", time.Now().UnixNano())
	alice.m.Send(text)
	sb, err = bob.await(ctx, 15*time.Second, func(s session.State) bool {
		return countContent(s, text) > 0
	})
	if err != nil {
		return fail(name, err)
	}
	sa, err = alice.await(ctx, 15*time.Second, func(s session.State) bool {
		return len(s.Queued) == 0 && countContent(s, text) == 1
	})
	if err != nil {
		return fail(name, fmt.Errorf("sender transcript: %w", err))
	}
	if n := countContent(sb, text); n != 1 {
		return append(results, stepResult{name, resultFail, fmt.Sprintf("bob sees %d copies", n)})
	}
	results = append(results, stepResult{name, resultPass, fmt.Sprintf("%d messages in room", len(sa.Messages))})

	// Step 5: alice disconnects and returns to the welcome screen.
	name = "Step 5: Disconnect"
	alice.m.Disconnect()
	if _, err := alice.await(ctx, 5*time.Second, func(s session.State) bool {
		return s.Screen == session.ScreenWelcome && s.UserID == ""
	}); err != nil {
		return fail(name, err)
	}
	results = append(results, stepResult{name, resultPass, ""})

	return results
}

func countContent(s session.State, text string) int {
	n := 0
	for _, m := range s.Transcript() {
		if m.Content == text {
			n++
		}
	}
	return n
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
