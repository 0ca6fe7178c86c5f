package monitor

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
)

// Token is a thread-safe cancellation flag set by the interrupt handler
// and polled cooperatively at the top of every monitoring loop iteration.
// It is written once and read many times; atomic semantics make it safe
// across the signal-handler boundary without further locking.
type Token struct {
	flag atomic.Bool
}

// NewToken returns a fresh, uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel sets the flag. Safe to call from any goroutine, any number of times.
func (t *Token) Cancel() {
	t.flag.Store(true)
}

// Cancelled reports whether cancellation has been requested.
func (t *Token) Cancelled() bool {
	return t.flag.Load()
}

// Process-wide interrupt handler state. Only the first InstallHandler call
// in a process lifetime installs the OS handler; later calls register their
// token with the existing handler, so every caller's token still fires.
var (
	handlerOnce      sync.Once
	handlerMu        sync.Mutex
	handlerTokens    []*Token
	handlerCancelled bool
)

// InstallHandler registers t to be cancelled on the first SIGINT/SIGTERM.
// Installing is idempotent: re-registration never panics and never replaces
// the earlier handler. A token registered after the signal already fired is
// cancelled immediately. A second signal force-exits the process, matching
// user expectations when a drain hangs. Handlers are never unregistered;
// the process exits shortly after cancellation.
func InstallHandler(t *Token, logger *slog.Logger) {
	handlerMu.Lock()
	handlerTokens = append(handlerTokens, t)
	if handlerCancelled {
		t.Cancel()
	}
	handlerMu.Unlock()

	handlerOnce.Do(func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			sig := <-sigCh
			logger.Debug("received interrupt, requesting cancellation",
				slog.String("signal", sig.String()),
			)

			cancelAllTokens()

			// Second signal — force exit.
			sig = <-sigCh
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		}()
	})
}

func cancelAllTokens() {
	handlerMu.Lock()
	defer handlerMu.Unlock()

	handlerCancelled = true
	for _, tok := range handlerTokens {
		tok.Cancel()
	}
}
