package switchover

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vtatransit-data/internal/common/config"
	"github.com/vtatransit-data/internal/common/db"
	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/pkg/transit/models"
)

// Extract directory generations, oldest first. Rotation shifts each
// one down a slot.
const (
	GenCurrentPrevious = "current_previous"
	GenCurrent         = "current"
	GenUpcoming        = "upcoming"
	GenUpcomingNext    = "upcoming_next"
)

// StepResult is the post-hoc verdict for one switchover action. The
// actions are not transactional; each is verified against its expected
// end state afterwards.
type StepResult struct {
	Name   string
	Passed bool
	Detail string
}

// Controller promotes the upcoming epoch to current when its feed
// start date arrives.
type Controller struct {
	db       *db.DB
	settings *config.Settings
	logger   logger.Logger
}

func NewController(database *db.DB, settings *config.Settings, log logger.Logger) *Controller {
	return &Controller{db: database, settings: settings, logger: log}
}

// Due reports whether the upcoming epoch's feed start date exists and
// lies in the past.
func (c *Controller) Due(ctx context.Context, now time.Time) (bool, error) {
	var startDate sql.NullString
	err := c.db.Conn().QueryRowContext(ctx, `
		SELECT feed_start_date FROM feed_info
		WHERE epoch = $1
		LIMIT 1
	`, string(models.EpochUpcoming)).Scan(&startDate)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("querying upcoming feed window: %w", err)
	}
	if !startDate.Valid || startDate.String == "" {
		return false, nil
	}

	start, err := time.Parse(models.WindowDateLayout, startDate.String)
	if err != nil {
		return false, fmt.Errorf("parsing feed start date %q: %w", startDate.String, err)
	}

	return !start.After(now), nil
}

// Run performs the three switchover actions in order, validating each
// one afterwards. It keeps going past a failed verification so the
// cycle log records every verdict.
func (c *Controller) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, 3)

	results = append(results, c.promoteRouteFields(ctx))
	results = append(results, c.purgeArtifacts())
	results = append(results, c.rotateGenerations())

	for _, r := range results {
		if r.Passed {
			c.logger.Info("Switchover step verified", "step", r.Name)
		} else {
			c.logger.Error("Switchover step failed verification", "step", r.Name, "detail", r.Detail)
		}
	}

	return results, nil
}

// promoteRouteFields copies each route's upcoming map and turn-by-turn
// fields into the current slot and clears the upcoming slot.
func (c *Controller) promoteRouteFields(ctx context.Context) StepResult {
	step := StepResult{Name: "promote_route_fields"}

	_, err := c.db.Conn().ExecContext(ctx, `
		UPDATE content_routes
		SET map_current = map_upcoming,
		    turns_current = turns_upcoming,
		    map_upcoming = NULL,
		    turns_upcoming = NULL,
		    updated_at = now()
		WHERE map_upcoming IS NOT NULL OR turns_upcoming IS NOT NULL
	`)
	if err != nil {
		step.Detail = err.Error()
		return step
	}

	// expected end state: no upcoming slots left populated
	var remaining int
	err = c.db.Conn().QueryRowContext(ctx, `
		SELECT count(*) FROM content_routes
		WHERE map_upcoming IS NOT NULL OR turns_upcoming IS NOT NULL
	`).Scan(&remaining)
	if err != nil {
		step.Detail = err.Error()
		return step
	}
	if remaining > 0 {
		step.Detail = fmt.Sprintf("%d routes still carry upcoming fields", remaining)
		return step
	}

	step.Passed = true
	return step
}

// purgeArtifacts deletes rendered schedule artifacts under both epoch
// directories; they are rebuilt lazily on the next render.
func (c *Controller) purgeArtifacts() StepResult {
	step := StepResult{Name: "purge_artifacts"}

	for _, epoch := range models.Epochs() {
		dir := filepath.Join(c.settings.ArtifactDir, string(epoch))
		if err := PurgeArtifacts(dir); err != nil {
			step.Detail = err.Error()
			return step
		}

		remaining, err := countArtifacts(dir)
		if err != nil {
			step.Detail = err.Error()
			return step
		}
		if remaining > 0 {
			step.Detail = fmt.Sprintf("%d artifacts remain under %s", remaining, dir)
			return step
		}
	}

	step.Passed = true
	return step
}

func (c *Controller) rotateGenerations() StepResult {
	step := StepResult{Name: "rotate_generations"}

	if err := RotateGenerations(c.settings.FeedRoot); err != nil {
		step.Detail = err.Error()
		return step
	}

	// expected end state: the upcoming_next slot is fully drained
	empty, err := dirEmpty(filepath.Join(c.settings.FeedRoot, GenUpcomingNext))
	if err != nil {
		step.Detail = err.Error()
		return step
	}
	if !empty {
		step.Detail = "upcoming_next directory not drained"
		return step
	}

	step.Passed = true
	return step
}

// RotateGenerations shifts the four extract-directory generations:
// current_previous is deleted, current becomes current_previous,
// upcoming becomes current, upcoming_next becomes upcoming. Every move
// is a copy followed by a delete of the source, so a crash mid-step can
// leave both sides populated; the post-hoc validation catches that.
// Rotating already-empty directories is a no-op.
func RotateGenerations(root string) error {
	if err := clearTree(filepath.Join(root, GenCurrentPrevious)); err != nil {
		return fmt.Errorf("clearing %s: %w", GenCurrentPrevious, err)
	}

	moves := []struct{ src, dst string }{
		{GenCurrent, GenCurrentPrevious},
		{GenUpcoming, GenCurrent},
		{GenUpcomingNext, GenUpcoming},
	}
	for _, m := range moves {
		src := filepath.Join(root, m.src)
		dst := filepath.Join(root, m.dst)
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("copying %s to %s: %w", m.src, m.dst, err)
		}
		if err := clearTree(src); err != nil {
			return fmt.Errorf("clearing %s: %w", m.src, err)
		}
	}

	return nil
}

// PurgeArtifacts removes rendered PDF artifacts under dir. A missing
// directory is a legitimate empty state.
func PurgeArtifacts(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pdf") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func countArtifacts(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	n := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".pdf") {
			n++
		}
	}
	return n, nil
}

// copyTree copies every regular file at the top level of src into dst.
// A missing source is treated as empty.
func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// clearTree removes the contents of dir, leaving the directory itself
// in place. Missing directories are fine.
func clearTree(dir string) error {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func dirEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}
