// Package runner drives the import cycle: a scheduled pass through
// prepare, populate, process, check and generate, with every step
// verdict journaled to the cycle audit log.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vtatransit-data/internal/common/config"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/internal/common/maintenance"
	"github.com/vtatransit-data/internal/common/notify"
	"github.com/vtatransit-data/internal/feed/content"
	"github.com/vtatransit-data/internal/feed/intake"
	"github.com/vtatransit-data/internal/feed/pipeline"
	"github.com/vtatransit-data/internal/feed/queue"
	"github.com/vtatransit-data/internal/feed/switchover"
	"github.com/vtatransit-data/internal/schedule/aggregate"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Runner owns one import cycle at a time and re-runs it on an interval.
type Runner struct {
	interval time.Duration
	settings *config.Settings
	database *db.DB
	logger   logger.Logger
	notifier *notify.Client

	cycleLog   *db.CycleLog
	controller *switchover.Controller
	store      *content.Store
	intake     *intake.Intake
	downloader *intake.HTTPDownloader
	getQueue   *queue.Queue
	saveQueue  *queue.Queue
	producer   *pipeline.Producer
	applier    *pipeline.Applier
	engine     *aggregate.Engine
	maintainer *maintenance.Maintenance

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
}

func New(interval time.Duration, settings *config.Settings, database *db.DB, notifier *notify.Client, log logger.Logger) *Runner {
	store := content.NewStore(database, log)
	getQueue := queue.New(database, queue.GetQueue)
	saveQueue := queue.New(database, queue.SaveQueue)

	return &Runner{
		interval:   interval,
		settings:   settings,
		database:   database,
		logger:     log,
		notifier:   notifier,
		cycleLog:   db.NewCycleLog(database),
		controller: switchover.NewController(database, settings, log),
		store:      store,
		intake:     intake.New(settings, log),
		downloader: intake.NewHTTPDownloader(log),
		getQueue:   getQueue,
		saveQueue:  saveQueue,
		producer:   pipeline.NewProducer(saveQueue, log, settings.BatchSize),
		applier:    pipeline.NewApplier(database, store, log, settings.BatchSize),
		engine: aggregate.NewEngine(
			aggregate.NewPostgresSource(database),
			aggregate.NewPostgresSink(database),
			log,
		),
		maintainer: maintenance.New(database, 0, log),
	}
}

// Start runs an initial cycle and then one per interval until the
// context is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("runner already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.logger.Info("Starting import runner", "interval", r.interval)

	if err := r.RunCycle(ctx); err != nil {
		r.logger.Error("Initial cycle failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Import runner stopped")
			return nil
		case <-ticker.C:
			if err := r.RunCycle(ctx); err != nil {
				r.logger.Error("Scheduled cycle failed", "error", err)
			}
		}
	}
}

func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return fmt.Errorf("runner not running")
	}

	if r.cancel != nil {
		r.cancel()
	}

	r.running = false
	return nil
}

type stepFunc func(ctx context.Context) (bool, string, error)

// RunCycle executes one full import cycle. A step whose verification
// fails does not stop the later steps; every verdict is recorded and
// the cycle closes failed, with the ops webhook fired once.
func (r *Runner) RunCycle(ctx context.Context) error {
	cycleID, err := r.cycleLog.Begin(ctx)
	if err != nil {
		return err
	}

	steps := []struct {
		name db.CycleStep
		run  stepFunc
	}{
		{db.StepPrepare, r.prepare},
		{db.StepPopulate, r.populate},
		{db.StepProcess, r.process},
		{db.StepCheck, r.check},
		{db.StepGenerate, r.generate},
	}

	var (
		journal   []string
		allPassed = true
		failedAt  db.CycleStep
		failure   string
	)

	for _, step := range steps {
		passed, detail, err := step.run(ctx)
		if err != nil {
			passed = false
			if detail == "" {
				detail = err.Error()
			}
		}

		if recordErr := r.cycleLog.RecordStep(ctx, cycleID, step.name, passed, detail); recordErr != nil {
			return recordErr
		}
		journal = append(journal, fmt.Sprintf("%s: passed=%t %s", step.name, passed, detail))

		if !passed && allPassed {
			allPassed = false
			failedAt = step.name
			failure = detail
		}

		// context cancellation is the one error that stops the cycle
		if err != nil && ctx.Err() != nil {
			break
		}
	}

	if err := r.cycleLog.Finish(ctx, cycleID, allPassed, strings.Join(journal, "\n")); err != nil {
		return err
	}

	if !allPassed {
		if err := r.notifier.Send(notify.CycleFailure(cycleID, string(failedAt), failure)); err != nil {
			r.logger.Error("Failed to send cycle alert", "cycle_id", cycleID, "error", err)
		}
		return fmt.Errorf("cycle %s failed at %s: %s", cycleID, failedAt, failure)
	}

	if err := r.maintainer.Run(ctx); err != nil {
		r.logger.Warn("Maintenance pass failed", "error", err)
	}
	return nil
}

// prepare fetches a fresh archive into the upcoming_next slot when one
// is configured and the slot is empty, then runs the epoch switchover
// if the upcoming feed's start date has arrived.
func (r *Runner) prepare(ctx context.Context) (bool, string, error) {
	if r.settings.FeedURL != "" {
		if err := r.fetchArchive(ctx); err != nil {
			return false, fmt.Sprintf("archive fetch: %v", err), err
		}
	}

	due, err := r.controller.Due(ctx, time.Now())
	if err != nil {
		return false, "", err
	}
	if !due {
		return true, "switchover not due", nil
	}

	results, err := r.controller.Run(ctx)
	if err != nil {
		return false, "", err
	}

	var failed []string
	for _, res := range results {
		if !res.Passed {
			failed = append(failed, res.Name+": "+res.Detail)
		}
	}
	if len(failed) > 0 {
		return false, strings.Join(failed, "; "), nil
	}
	return true, "switchover complete", nil
}

func (r *Runner) fetchArchive(ctx context.Context) error {
	slot := filepath.Join(r.settings.FeedRoot, switchover.GenUpcomingNext)
	entries, err := os.ReadDir(slot)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	tmp, err := os.CreateTemp("", "feed-*.zip")
	if err != nil {
		return err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := r.downloader.Download(ctx, r.settings.FeedURL, tmp.Name()); err != nil {
		return err
	}
	return r.intake.ExtractArchive(tmp.Name(), switchover.GenUpcomingNext)
}

// populate enqueues one get item per configured domain per epoch whose
// extract file is present on disk. Missing files are skipped; an epoch
// with no extracts at all is a legitimate empty state.
func (r *Runner) populate(ctx context.Context) (bool, string, error) {
	enqueued := 0

	for _, epoch := range models.Epochs() {
		dir := filepath.Join(r.settings.FeedRoot, generationFor(epoch))
		for _, d := range r.settings.Domains {
			path := filepath.Join(dir, d.File)
			if _, err := os.Stat(path); err != nil {
				continue
			}

			payload := pipeline.GetPayload{
				Key:   d.Key,
				Path:  path,
				Epoch: string(epoch),
			}
			b, err := payload.Marshal()
			if err != nil {
				return false, "", err
			}
			if err := r.getQueue.Enqueue(ctx, b); err != nil {
				return false, "", err
			}
			enqueued++
		}
	}

	return true, fmt.Sprintf("%d extracts enqueued", enqueued), nil
}

// process drains both queues to empty, get first so the save side sees
// every batch of this cycle.
func (r *Runner) process(ctx context.Context) (bool, string, error) {
	r.applier.ResetCycle()

	mapped, err := pipeline.DrainGet(ctx, r.getQueue, r.producer, r.logger)
	if err != nil {
		return false, "", err
	}
	saved, err := pipeline.DrainSave(ctx, r.saveQueue, r.applier, r.logger)
	if err != nil {
		return false, "", err
	}

	// expected end state: both queues drained
	for _, q := range []*queue.Queue{r.getQueue, r.saveQueue} {
		n, err := q.Len(ctx)
		if err != nil {
			return false, "", err
		}
		if n > 0 {
			return false, fmt.Sprintf("%d items left in queue", n), nil
		}
	}

	return true, fmt.Sprintf("%d extracts mapped, %d batches applied", mapped, saved), nil
}

func (r *Runner) check(ctx context.Context) (bool, string, error) {
	changed, err := r.store.CheckLifecycles(ctx, time.Now())
	if err != nil {
		return false, "", err
	}
	return true, fmt.Sprintf("%d routes reclassified", changed), nil
}

// generate runs the aggregation pass per epoch. An empty upcoming epoch
// is routine between feed drops and does not fail the cycle; an empty
// current epoch does.
func (r *Runner) generate(ctx context.Context) (bool, string, error) {
	var details []string

	for _, epoch := range models.Epochs() {
		err := r.engine.Run(ctx, epoch)
		if err == nil {
			details = append(details, string(epoch)+": ok")
			continue
		}

		var empty *aggregate.EmptyStepError
		if errors.As(err, &empty) && epoch == models.EpochUpcoming {
			details = append(details, fmt.Sprintf("%s: skipped (%s empty)", epoch, empty.Step))
			continue
		}
		return false, strings.Join(append(details, fmt.Sprintf("%s: %v", epoch, err)), "; "), nil
	}

	return true, strings.Join(details, "; "), nil
}

func generationFor(epoch models.Epoch) string {
	if epoch == models.EpochUpcoming {
		return switchover.GenUpcoming
	}
	return switchover.GenCurrent
}
