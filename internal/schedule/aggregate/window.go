package aggregate

import (
	"fmt"
	"time"

	"github.com/vtatransit-data/pkg/transit/models"
)

// parseWindow turns a feed-form date span into a ServiceWindow.
func parseWindow(w Window) (models.ServiceWindow, error) {
	start, err := time.Parse(models.WindowDateLayout, w.Start)
	if err != nil {
		return models.ServiceWindow{}, fmt.Errorf("parsing window start %q: %w", w.Start, err)
	}
	end, err := time.Parse(models.WindowDateLayout, w.End)
	if err != nil {
		return models.ServiceWindow{}, fmt.Errorf("parsing window end %q: %w", w.End, err)
	}
	return models.NewServiceWindow("", start, end), nil
}
