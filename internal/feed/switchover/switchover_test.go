package switchover

import (
	"os"
	"path/filepath"
	"testing"
)

func writeGen(t *testing.T, root, gen string, files map[string]string) {
	t.Helper()
	dir := filepath.Join(root, gen)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("creating %s: %v", gen, err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("writing %s/%s: %v", gen, name, err)
		}
	}
}

func readGenFile(t *testing.T, root, gen, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(root, gen, name))
	if err != nil {
		t.Fatalf("reading %s/%s: %v", gen, name, err)
	}
	return string(b)
}

func genNames(t *testing.T, root, gen string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(root, gen))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("listing %s: %v", gen, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRotateGenerations(t *testing.T) {
	root := t.TempDir()
	writeGen(t, root, GenCurrentPrevious, map[string]string{"routes.txt": "stale"})
	writeGen(t, root, GenCurrent, map[string]string{"routes.txt": "current"})
	writeGen(t, root, GenUpcoming, map[string]string{"routes.txt": "upcoming"})
	writeGen(t, root, GenUpcomingNext, map[string]string{"routes.txt": "next"})

	if err := RotateGenerations(root); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readGenFile(t, root, GenCurrentPrevious, "routes.txt"); got != "current" {
		t.Errorf("current_previous should hold the old current extract, got %q", got)
	}
	if got := readGenFile(t, root, GenCurrent, "routes.txt"); got != "upcoming" {
		t.Errorf("current should hold the old upcoming extract, got %q", got)
	}
	if got := readGenFile(t, root, GenUpcoming, "routes.txt"); got != "next" {
		t.Errorf("upcoming should hold the old upcoming_next extract, got %q", got)
	}
	if names := genNames(t, root, GenUpcomingNext); len(names) != 0 {
		t.Errorf("upcoming_next should be drained, still holds %v", names)
	}
}

func TestRotateGenerationsEmptySlotsNoOp(t *testing.T) {
	root := t.TempDir()
	writeGen(t, root, GenCurrent, map[string]string{"routes.txt": "current"})
	// no upcoming or upcoming_next drops have arrived

	if err := RotateGenerations(root); err != nil {
		t.Fatalf("rotation with empty slots must not error: %v", err)
	}

	if got := readGenFile(t, root, GenCurrentPrevious, "routes.txt"); got != "current" {
		t.Errorf("current_previous should hold the old current extract, got %q", got)
	}
	if names := genNames(t, root, GenCurrent); len(names) != 0 {
		t.Errorf("current should be empty after rotating an empty upcoming, got %v", names)
	}

	// rotating again just shifts the empties along
	if err := RotateGenerations(root); err != nil {
		t.Fatalf("second rotation must not error: %v", err)
	}
	if names := genNames(t, root, GenCurrentPrevious); len(names) != 0 {
		t.Errorf("current_previous should be empty after second rotation, got %v", names)
	}
}

func TestRotateGenerationsMissingRootDirs(t *testing.T) {
	if err := RotateGenerations(t.TempDir()); err != nil {
		t.Fatalf("missing generation directories should rotate as empty: %v", err)
	}
}

func TestPurgeArtifacts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"22_schedule.pdf", "523_schedule.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := PurgeArtifacts(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("only PDFs should be purged, dir now holds %v", entries)
	}
}

func TestPurgeArtifactsMissingDir(t *testing.T) {
	if err := PurgeArtifacts(filepath.Join(t.TempDir(), "nope")); err != nil {
		t.Fatalf("missing artifact dir is a legitimate empty state: %v", err)
	}
}
