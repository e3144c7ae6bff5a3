package matrix

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bluele/gcache"

	"github.com/vtatransit-data/internal/common/logger"
	"github.com/vtatransit-data/pkg/transit/models"
)

// ArtifactStore renders and caches the downloadable schedule documents.
// Rendering is lazy: the document for a route is built on first request
// and reused until the switchover purge removes it. Existence is cached
// with an LRU so hot routes skip the stat call, but the filesystem is
// rechecked on every hit since the purge deletes files behind the
// cache's back.
type ArtifactStore struct {
	dir    string
	cache  gcache.Cache
	logger logger.Logger
}

func NewArtifactStore(dir string, log logger.Logger) *ArtifactStore {
	return &ArtifactStore{
		dir: dir,
		cache: gcache.New(512).
			LRU().
			Expiration(24 * time.Hour).
			Build(),
		logger: log,
	}
}

// Path returns where the artifact for a route and epoch lives. The
// per-epoch subdirectory is what the switchover purge clears.
func (s *ArtifactStore) Path(routeID string, epoch models.Epoch) string {
	return filepath.Join(s.dir, string(epoch), fmt.Sprintf("%s_schedule.pdf", routeID))
}

// Ensure returns the artifact path, rendering the document first if it
// does not exist on disk. Concurrent callers may both render; the
// write is a temp-file-and-rename so the worst case is doubled work,
// never a torn file.
func (s *ArtifactStore) Ensure(routeID string, epoch models.Epoch, m *Matrix) (string, error) {
	path := s.Path(routeID, epoch)
	key := string(epoch) + "/" + routeID

	if cached, err := s.cache.Get(key); err == nil && cached == true {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		s.cache.Remove(key)
	}

	if _, err := os.Stat(path); err == nil {
		s.cache.Set(key, true)
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "schedule-*.pdf")
	if err != nil {
		return "", fmt.Errorf("creating artifact temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeSchedulePDF(tmp, m); err != nil {
		tmp.Close()
		return "", fmt.Errorf("rendering artifact for %s: %w", routeID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing artifact temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publishing artifact: %w", err)
	}

	s.cache.Set(key, true)
	s.logger.Info("Rendered schedule artifact", "route_id", routeID, "epoch", string(epoch), "path", path)
	return path, nil
}

// writeSchedulePDF emits a minimal single-page PDF listing the route,
// direction and day of service with the timetable rows in monospace
// text. Good enough to download and print; no layout engine involved.
func writeSchedulePDF(w io.Writer, m *Matrix) error {
	var lines []string
	lines = append(lines, fmt.Sprintf("Route %s %s", m.RouteID, m.RouteName))
	lines = append(lines, fmt.Sprintf("%s - %s", m.DirectionName, m.ServiceDescription))
	lines = append(lines, "")

	var header []string
	for _, col := range m.Columns {
		header = append(header, col.StopName)
	}
	lines = append(lines, strings.Join(header, " | "))

	for _, row := range m.Rows {
		cells := make([]string, len(row.Times))
		for i, t := range row.Times {
			if t == "" {
				t = "-"
			}
			cells[i] = t
		}
		lines = append(lines, strings.Join(cells, " | "))
	}

	var content bytes.Buffer
	content.WriteString("BT /F1 9 Tf 36 756 Td 12 TL\n")
	for _, line := range lines {
		fmt.Fprintf(&content, "(%s) Tj T*\n", escapePDFText(line))
	}
	content.WriteString("ET\n")

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Courier >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	_, err := w.Write(buf.Bytes())
	return err
}

func escapePDFText(s string) string {
	r := strings.NewReplacer("\\", "\\\\", "(", "\\(", ")", "\\)")
	return r.Replace(s)
}
