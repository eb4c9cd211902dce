package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ExpirySweeper is the slice of the session service the job needs.
type ExpirySweeper interface {
	SweepExpiredSessions(ctx context.Context) (int64, error)
}

// SweepJob periodically marks sessions past their expiry as expired, a
// backstop for the lazy expiry done on read.
type SweepJob struct {
	sweeper  ExpirySweeper
	interval time.Duration
	done     chan struct{}
}

func NewSweepJob(sweeper ExpirySweeper, interval time.Duration) *SweepJob {
	return &SweepJob{
		sweeper:  sweeper,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *SweepJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("expiry sweep job started")
}

func (j *SweepJob) Stop() {
	close(j.done)
	log.Info().Msg("expiry sweep job stopped")
}

func (j *SweepJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweepJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.sweeper.SweepExpiredSessions(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep expired sessions")
	} else if count > 0 {
		log.Info().Int64("count", count).Msg("marked sessions expired")
	}
}
