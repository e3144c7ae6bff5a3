package content

import (
	"testing"
	"time"

	"github.com/vtatransit-data/pkg/transit/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name          string
		epoch         models.Epoch
		age           time.Duration
		inCurrent     bool
		wantStatus    string
		wantPublished bool
	}{
		{
			name:          "current and stale is gone",
			epoch:         models.EpochCurrent,
			age:           25 * time.Hour,
			inCurrent:     true,
			wantStatus:    StatusInactive,
			wantPublished: false,
		},
		{
			name:          "current and fresh is discontinued",
			epoch:         models.EpochCurrent,
			age:           time.Hour,
			inCurrent:     true,
			wantStatus:    StatusDiscontinued,
			wantPublished: true,
		},
		{
			name:          "upcoming already scheduled is active",
			epoch:         models.EpochUpcoming,
			age:           time.Hour,
			inCurrent:     true,
			wantStatus:    StatusActive,
			wantPublished: true,
		},
		{
			name:          "upcoming only is new",
			epoch:         models.EpochUpcoming,
			age:           time.Hour,
			inCurrent:     false,
			wantStatus:    StatusNew,
			wantPublished: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, published := Classify(tc.epoch, tc.age, tc.inCurrent)
			if status != tc.wantStatus {
				t.Errorf("expected status %q, got %q", tc.wantStatus, status)
			}
			if published != tc.wantPublished {
				t.Errorf("expected published %v, got %v", tc.wantPublished, published)
			}
		})
	}
}

func TestClassifyStaleBoundary(t *testing.T) {
	// exactly 24h old is still only discontinued
	status, published := Classify(models.EpochCurrent, 24*time.Hour, false)
	if status != StatusDiscontinued || !published {
		t.Errorf("24h-old record should be discontinued and published, got %q/%v", status, published)
	}
}
