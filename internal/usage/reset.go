package usage

import (
	"time"

	"github.com/rs/zerolog"
)

// Sweeper evicts stale usage records once a day so the store does not grow
// with every user ever seen. Counters themselves reset lazily on access.
type Sweeper struct {
	store     *Store
	sweepTime time.Time // Time of day (UTC) to sweep; only hour and minute are used
	clock     Clock
	logger    zerolog.Logger
	stopChan  chan struct{}
}

// NewSweeper creates a new sweeper running daily at sweepTime (HH:MM, UTC)
func NewSweeper(store *Store, sweepTime string, logger zerolog.Logger) (*Sweeper, error) {
	parsedTime, err := time.Parse("15:04", sweepTime)
	if err != nil {
		return nil, err
	}

	return &Sweeper{
		store:     store,
		sweepTime: parsedTime,
		clock:     store.clock,
		logger:    logger.With().Str("component", "usage-sweeper").Logger(),
		stopChan:  make(chan struct{}),
	}, nil
}

// Start begins the sweeper
func (sw *Sweeper) Start() {
	go sw.run()
	sw.logger.Info().
		Str("sweep_time", sw.sweepTime.Format("15:04")).
		Msg("Daily usage sweeper started")
}

// Stop stops the sweeper
func (sw *Sweeper) Stop() {
	close(sw.stopChan)
	sw.logger.Info().Msg("Daily usage sweeper stopped")
}

func (sw *Sweeper) run() {
	for {
		nextSweep := sw.calculateNextSweep()
		waitDuration := nextSweep.Sub(sw.clock.Now())

		sw.logger.Debug().
			Time("next_sweep", nextSweep).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next usage sweep")

		select {
		case <-time.After(waitDuration):
			sw.performSweep()
		case <-sw.stopChan:
			return
		}
	}
}

// calculateNextSweep returns the next sweep instant strictly after now.
func (sw *Sweeper) calculateNextSweep() time.Time {
	now := sw.clock.Now().UTC()

	todaySweep := time.Date(
		now.Year(), now.Month(), now.Day(),
		sw.sweepTime.Hour(), sw.sweepTime.Minute(), 0, 0,
		time.UTC,
	)

	if !now.Before(todaySweep) {
		return todaySweep.AddDate(0, 0, 1)
	}

	return todaySweep
}

func (sw *Sweeper) performSweep() {
	removed := sw.store.Sweep()
	sw.logger.Info().
		Int("records_removed", removed).
		Int("records_remaining", sw.store.Len()).
		Msg("Usage sweep complete")
}
