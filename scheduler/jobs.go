package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"crypto_backend_project/models"
	"crypto_backend_project/services"
	"crypto_backend_project/services/coingecko"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// CollectionState is the phase of the collection pipeline
type CollectionState int

// Collection states. The scheduler starts Uninitialized, fills the catalog
// once, bootstraps history coverage in small batches, then settles into
// steady collection plus alert checking.
const (
	StateUninitialized CollectionState = iota
	StateBootstrapping
	StateSteady
)

// Config holds the scheduler's tunables
type Config struct {
	Interval           time.Duration
	VsCurrency         string
	CoverageTarget     int
	BootstrapBatchSize int
}

// Scheduler manages the periodic collection tick
type Scheduler struct {
	cron      *gocron.Scheduler
	db        *gorm.DB
	collector *services.CollectorService
	backfill  *services.BackfillService
	checker   *services.AlertCheckerService
	history   *services.HistoryService
	realtime  *services.RealtimePriceService
	cfg       Config
	state     CollectionState
}

// NewScheduler creates a new scheduler instance. realtime may be nil when no
// websocket stream is wanted.
func NewScheduler(db *gorm.DB, collector *services.CollectorService, backfill *services.BackfillService,
	checker *services.AlertCheckerService, realtime *services.RealtimePriceService, cfg Config) *Scheduler {
	return &Scheduler{
		cron:      gocron.NewScheduler(time.UTC),
		db:        db,
		collector: collector,
		backfill:  backfill,
		checker:   checker,
		history:   services.NewHistoryService(db),
		realtime:  realtime,
		cfg:       cfg,
		state:     StateUninitialized,
	}
}

// Start starts the collection job. SingletonMode keeps ticks mutually
// exclusive: a tick whose external calls outrun the interval delays the next
// tick instead of racing it on the same catalog and history rows.
func (s *Scheduler) Start() {
	log.Println("Starting collection scheduler...")

	s.cron.Every(s.cfg.Interval).SingletonMode().Do(s.runCollectionTick)

	s.cron.StartAsync()
	log.Printf("Collection scheduler started (interval=%s, currency=%s)", s.cfg.Interval, s.cfg.VsCurrency)
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Collection scheduler stopped")
}

// State returns the current collection state
func (s *Scheduler) State() CollectionState {
	return s.state
}

// runCollectionTick is the gocron entry point. Whatever a tick returns stays
// inside it: a rate-limit signal is a warning and anything else an error log,
// and the scheduler always lives to run its next period.
func (s *Scheduler) runCollectionTick() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Collection tick panic: %v", r)
		}
	}()

	if err := s.Tick(context.Background()); err != nil {
		if errors.Is(err, coingecko.ErrRateLimited) {
			log.Println("Collection tick rate limited by provider, retrying next tick")
			return
		}
		log.Printf("Collection tick failed: %v", err)
	}
}

// Tick runs one unit of the collection pipeline according to the current
// state:
//
//   - Uninitialized: one catalog-only snapshot so the backfiller has assets
//     to walk, then move to Bootstrapping.
//   - Bootstrapping: recompute coverage from the database (never cached, so a
//     restart resumes where the data says we are); below target, run one
//     bounded backfill batch and stop there, skipping alert evaluation. At
//     target, move to Steady and continue into the same tick.
//   - Steady: snapshot with NOW points, stream the refreshed prices, then
//     evaluate alerts.
func (s *Scheduler) Tick(ctx context.Context) error {
	if s.state == StateUninitialized {
		if _, err := s.collector.CollectTopMarkets(ctx, false); err != nil {
			return err
		}
		s.state = StateBootstrapping
		log.Println("Catalog initialized, entering bootstrap phase")
		return nil
	}

	if s.state == StateBootstrapping {
		covered, err := s.history.CountDistinctAssetsCovered(s.cfg.VsCurrency)
		if err != nil {
			return err
		}

		if covered < int64(s.cfg.CoverageTarget) {
			done, err := s.backfill.BackfillMissing(ctx, s.cfg.VsCurrency, s.cfg.BootstrapBatchSize)
			after, countErr := s.history.CountDistinctAssetsCovered(s.cfg.VsCurrency)
			if countErr == nil {
				log.Printf("Bootstrap: +%d this tick | %d/%d assets covered", done, after, s.cfg.CoverageTarget)
			}
			return err
		}

		s.state = StateSteady
		log.Printf("Bootstrap complete (%d/%d covered), entering steady collection", covered, s.cfg.CoverageTarget)
	}

	if _, err := s.collector.CollectTopMarkets(ctx, true); err != nil {
		return err
	}

	s.broadcastPrices()

	return s.checker.CheckAlerts()
}

// broadcastPrices pushes the refreshed snapshot onto the websocket stream
func (s *Scheduler) broadcastPrices() {
	if s.realtime == nil {
		return
	}

	var assets []models.CryptoAsset
	err := s.db.Where("market_cap_rank IS NOT NULL").
		Order("market_cap_rank ASC").
		Find(&assets).Error
	if err != nil {
		log.Printf("Error loading assets for realtime broadcast: %v", err)
		return
	}
	s.realtime.BroadcastSnapshot(assets)
}
