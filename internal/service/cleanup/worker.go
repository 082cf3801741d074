package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type SessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type Worker struct {
	sessions SessionCleaner
	interval time.Duration
	log      zerolog.Logger
}

func NewWorker(sessions SessionCleaner, interval time.Duration, log zerolog.Logger) *Worker {
	return &Worker{sessions: sessions, interval: interval, log: log}
}

// Start runs one pass immediately and then one per interval until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		w.runCleanup(ctx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info().Msg("cleanup worker stopped")
				return
			case <-ticker.C:
				w.runCleanup(ctx)
			}
		}
	}()
	w.log.Info().Dur("interval", w.interval).Msg("cleanup worker started")
}

func (w *Worker) runCleanup(ctx context.Context) {
	removed, err := w.sessions.CleanupExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error().Err(err).Msg("session cleanup failed")
		}
		return
	}
	if removed > 0 {
		w.log.Info().Int64("removed", removed).Msg("removed expired sessions")
	}
}
