package maintenance

import (
	"testing"
	"time"

	"github.com/vtatransit-data/internal/common/logger"
)

func TestNewDefaultsRetention(t *testing.T) {
	m := New(nil, 0, logger.New(nil))
	if m.retention != DefaultRetention {
		t.Errorf("expected default retention %v, got %v", DefaultRetention, m.retention)
	}

	m = New(nil, -time.Hour, logger.New(nil))
	if m.retention != DefaultRetention {
		t.Errorf("negative retention should fall back to default, got %v", m.retention)
	}
}

func TestNewKeepsExplicitRetention(t *testing.T) {
	m := New(nil, 7*24*time.Hour, logger.New(nil))
	if m.retention != 7*24*time.Hour {
		t.Errorf("expected explicit retention kept, got %v", m.retention)
	}
}
