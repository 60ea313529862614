package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/whisper/chatxp/internal/debugserver"
	"github.com/whisper/chatxp/internal/messaging"
	"github.com/whisper/chatxp/internal/session"
)

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr := session.NewManager(newAPIClient(cfg, logger), st, session.DefaultConfig(),
		session.WithLogger(logger),
		session.WithBackoffObserver(func(attempt int, delay time.Duration) {
			logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("[session] reconnect scheduled")
		}),
	)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		_ = mgr.Run(ctx)
	}()

	if cfg.NATSURL != "" {
		startMirror(ctx, mgr, cfg.NATSURL, logger)
	}
	if cfg.DebugAddr != "" {
		go func() {
			if err := debugserver.Serve(ctx, cfg.DebugAddr, mgr, logger); err != nil {
				logger.Warn().Err(err).Msg("[debug] server stopped")
			}
		}()
	}

	snaps, unsubscribe := mgr.Subscribe()
	defer unsubscribe()
	out := cmd.OutOrStdout()
	rend := newRenderer(out)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for s := range snaps {
			rend.render(s)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for keepGoing := true; keepGoing; {
		select {
		case <-ctx.Done():
			keepGoing = false
		case line, ok := <-lines:
			if !ok {
				keepGoing = false
				break
			}
			var msg string
			keepGoing, msg = handleLine(mgr, mgr.State(), line)
			if msg != "" {
				fmt.Fprintln(out, msg)
			}
		}
	}

	stop()
	<-runDone
	unsubscribe()
	<-rendered
	return nil
}

// startMirror publishes snapshots to NATS. A NATS outage is logged and the
// client keeps running.
func startMirror(ctx context.Context, mgr *session.Manager, url string, logger zerolog.Logger) {
	natsCfg := messaging.DefaultNATSConfig()
	natsCfg.URL = url
	nc, err := messaging.NewNATSClient(natsCfg, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("[nats] mirror disabled")
		return
	}

	clientID := uuid.NewString()
	logger.Info().Str("subject", messaging.SessionSubject(clientID)).Msg("[nats] mirroring session")
	snaps, unsubscribe := mgr.Subscribe()
	go func() {
		defer nc.Close()
		defer unsubscribe()
		messaging.Mirror(ctx, nc, clientID, snaps, logger)
	}()
}
