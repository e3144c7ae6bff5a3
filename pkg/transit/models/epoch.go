package models

import "fmt"

// Epoch identifies one of the two feed versions in flight at any time.
type Epoch string

const (
	EpochCurrent  Epoch = "current"
	EpochUpcoming Epoch = "upcoming"
)

// Epochs lists both epochs in processing order.
func Epochs() []Epoch {
	return []Epoch{EpochCurrent, EpochUpcoming}
}

// ParseEpoch validates an epoch string coming off a queue payload or request.
func ParseEpoch(s string) (Epoch, error) {
	switch Epoch(s) {
	case EpochCurrent:
		return EpochCurrent, nil
	case EpochUpcoming:
		return EpochUpcoming, nil
	}
	return "", fmt.Errorf("unknown epoch %q", s)
}
