// workers/scheduler.go
package workers

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"lvlup-backend/blockchain"
	"lvlup-backend/logger"
	"lvlup-backend/metrics"
	"lvlup-backend/storage"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const (
	jobExpireStakes = "expire_stakes"
	jobSignerCheck  = "signer_self_test"

	selfTestSubject = "signer-self-test"
)

// SignerProbe is the part of the signing authority the self-test exercises.
type SignerProbe interface {
	Address() string
	SignClaim(wallet string, amount *big.Int, subjectID string) (*blockchain.ClaimSignature, error)
	VerifySignature(signature, wallet string, amount *big.Int, subjectID string, timestamp int64) bool
}

type SchedulerConfig struct {
	// ClaimWindow is how long after ends_at an active stake may still be
	// claimed. Zero disables the expiry sweep.
	ClaimWindow      time.Duration
	ExpiryInterval   time.Duration
	SelfTestInterval time.Duration
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	sched  gocron.Scheduler
	stakes storage.StakeStore
	signer SignerProbe
	clock  clockwork.Clock
	cfg    SchedulerConfig
	log    *zap.Logger
}

func NewScheduler(stakes storage.StakeStore, signer SignerProbe, clock clockwork.Clock, cfg SchedulerConfig, log *zap.Logger) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	sched, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		sched:  sched,
		stakes: stakes,
		signer: signer,
		clock:  clock,
		cfg:    cfg,
		log:    logger.OrNop(log).Named("scheduler"),
	}

	if cfg.ClaimWindow > 0 && cfg.ExpiryInterval > 0 {
		if err := s.add(jobExpireStakes, cfg.ExpiryInterval, func(ctx context.Context) error {
			_, err := s.ExpireStakes(ctx)
			return err
		}); err != nil {
			return nil, err
		}
	}
	if signer != nil && cfg.SelfTestInterval > 0 {
		if err := s.add(jobSignerCheck, cfg.SelfTestInterval, func(context.Context) error {
			return s.SelfTestSigner()
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, run func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			err := run(context.Background())
			metrics.RecordJobRun(name, err == nil)
			if err != nil {
				s.log.Error("job failed", zap.String("job", name), zap.Error(err))
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	return nil
}

// JobNames lists the registered jobs.
func (s *Scheduler) JobNames() []string {
	jobs := s.sched.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.log.Info("scheduler started", zap.Strings("jobs", s.JobNames()))
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

// ExpireStakes moves active stakes whose claim window has passed to expired.
func (s *Scheduler) ExpireStakes(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().UTC().Add(-s.cfg.ClaimWindow)
	n, err := s.stakes.ExpireStakes(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.RecordStakesExpired(n)
		s.log.Info("stakes expired", zap.Int64("count", n), zap.Time("ended_before", cutoff))
	}
	return n, nil
}

// SelfTestSigner signs a probe claim and verifies it.
func (s *Scheduler) SelfTestSigner() error {
	amount := big.NewInt(1)
	sig, err := s.signer.SignClaim(s.signer.Address(), amount, selfTestSubject)
	if err == nil && !s.signer.VerifySignature(sig.Signature, s.signer.Address(), amount, selfTestSubject, sig.Timestamp) {
		err = fmt.Errorf("signer produced a signature it cannot verify")
	}
	metrics.SetSignerHealthy(err == nil)
	if err != nil {
		return err
	}
	s.log.Debug("signer self-test passed", zap.String("signer", s.signer.Address()))
	return nil
}
