package intake

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vtatransit-data/internal/common/config"
	"github.com/vtatransit-data/internal/common/logger"
)

// Intake unpacks uploaded or downloaded feed archives into the
// per-epoch extract directory tree. Only the files named in the domain
// settings are extracted; anything else in the archive is ignored.
type Intake struct {
	settings *config.Settings
	logger   logger.Logger
}

func New(settings *config.Settings, log logger.Logger) *Intake {
	return &Intake{settings: settings, logger: log}
}

// ExtractArchive unpacks the wanted extract files from zipPath into
// the directory for the given epoch generation (current, upcoming,
// upcoming_next).
func (in *Intake) ExtractArchive(zipPath, generation string) error {
	destDir := filepath.Join(in.settings.FeedRoot, generation)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating epoch directory: %w", err)
	}

	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("opening feed archive: %w", err)
	}
	defer reader.Close()

	wanted := make(map[string]bool, len(in.settings.Domains))
	for _, d := range in.settings.Domains {
		wanted[d.File] = true
	}

	extracted := 0
	for _, file := range reader.File {
		name := filepath.Base(file.Name)
		if !wanted[name] || strings.HasSuffix(file.Name, "/") {
			continue
		}
		if err := in.extractFile(file, filepath.Join(destDir, name)); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		extracted++
	}

	in.logger.Info("Feed archive extracted",
		"archive", zipPath,
		"generation", generation,
		"files", extracted)

	if extracted == 0 {
		return fmt.Errorf("archive %s contained none of the configured extracts", zipPath)
	}
	return nil
}

func (in *Intake) extractFile(file *zip.File, destPath string) error {
	rc, err := file.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return err
	}
	return out.Sync()
}
