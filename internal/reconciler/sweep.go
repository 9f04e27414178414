package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"soleledger/internal/store"

	"github.com/rs/zerolog"
)

// SweepAccountStore lists the linked accounts whose watermark has gone stale.
type SweepAccountStore interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]store.Account, error)
}

// Sweeper periodically re-syncs every account whose watermark is older than
// the staleness cutoff. Accounts are independent: one account's failure is
// logged and the sweep moves on.
type Sweeper struct {
	reconciler  *Reconciler
	accounts    SweepAccountStore
	log         zerolog.Logger
	staleAfter  time.Duration
	concurrency int
	now         func() time.Time
}

func NewSweeper(reconciler *Reconciler, accounts SweepAccountStore, log zerolog.Logger, staleAfter time.Duration, concurrency int) *Sweeper {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Sweeper{
		reconciler:  reconciler,
		accounts:    accounts,
		log:         log,
		staleAfter:  staleAfter,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SweepOnce syncs all currently stale accounts and returns how many runs
// succeeded and how many failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (succeeded, failed int) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.accounts.ListStale(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("stale account listing failed")
		return 0, 0
	}
	if len(stale) == 0 {
		return 0, 0
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.concurrency)
	for _, account := range stale {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(account store.Account) {
			defer wg.Done()
			defer func() { <-sem }()
			_, err := s.reconciler.Run(ctx, RunRequest{
				AccountID:  account.ID,
				BusinessID: account.BusinessID,
				ActorID:    "system",
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if !errors.Is(err, context.Canceled) {
					s.log.Warn().Str("account_id", account.ID).Err(err).Msg("sweep sync failed")
				}
				return
			}
			succeeded++
		}(account)
	}
	wg.Wait()
	if succeeded+failed > 0 {
		s.log.Info().Int("succeeded", succeeded).Int("failed", failed).Msg("sweep finished")
	}
	return succeeded, failed
}

// Start runs the sweep on a fixed interval until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
