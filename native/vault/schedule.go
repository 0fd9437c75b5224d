package vault

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ScheduleKind tags the rate schedule variant.
type ScheduleKind uint8

const (
	// ScheduleFlat accrues at a single annual rate.
	ScheduleFlat ScheduleKind = iota
	// ScheduleTiered accrues at per-window bonus rates, then at a tail rate.
	ScheduleTiered
)

func (k ScheduleKind) String() string {
	switch k {
	case ScheduleFlat:
		return "flat"
	case ScheduleTiered:
		return "tiered"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseScheduleKind maps "flat" / "tiered" to a ScheduleKind.
func ParseScheduleKind(value string) (ScheduleKind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "flat":
		return ScheduleFlat, nil
	case "tiered":
		return ScheduleTiered, nil
	default:
		return 0, fmt.Errorf("%w: unknown schedule kind %q", errInvalidSchedule, value)
	}
}

// Tier is one consecutive window of the tiered schedule.
type Tier struct {
	// Length is the window length in seconds.
	Length uint64
	// Rate is the annual rate applied inside the window.
	Rate *uint256.Int
}

// Schedule is the rate schedule of the vault. Rate is used by the flat
// variant; Tiers and TailRate by the tiered variant.
type Schedule struct {
	Kind     ScheduleKind
	Rate     *uint256.Int
	Tiers    []Tier
	TailRate *uint256.Int
}

// FlatSchedule returns a schedule accruing at rate for all time.
func FlatSchedule(rate *uint256.Int) Schedule {
	return Schedule{Kind: ScheduleFlat, Rate: cloneAmount(rate)}
}

// TieredSchedule returns a schedule of consecutive windows followed by tail.
func TieredSchedule(tiers []Tier, tail *uint256.Int) Schedule {
	s := Schedule{Kind: ScheduleTiered, TailRate: cloneAmount(tail)}
	for _, tier := range tiers {
		s.Tiers = append(s.Tiers, Tier{Length: tier.Length, Rate: cloneAmount(tier.Rate)})
	}
	return s
}

// Validate checks the structural constraints of the schedule.
func (s Schedule) Validate() error {
	switch s.Kind {
	case ScheduleFlat:
		return nil
	case ScheduleTiered:
		if len(s.Tiers) == 0 {
			return fmt.Errorf("%w: tiered schedule needs at least one tier", errInvalidSchedule)
		}
		for i, tier := range s.Tiers {
			if tier.Length == 0 {
				return fmt.Errorf("%w: tier %d has zero length", errInvalidSchedule, i)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %d", errInvalidSchedule, s.Kind)
	}
}

// Clone returns a deep copy of the schedule.
func (s Schedule) Clone() Schedule {
	clone := Schedule{Kind: s.Kind}
	if s.Rate != nil {
		clone.Rate = new(uint256.Int).Set(s.Rate)
	}
	if s.TailRate != nil {
		clone.TailRate = new(uint256.Int).Set(s.TailRate)
	}
	for _, tier := range s.Tiers {
		clone.Tiers = append(clone.Tiers, Tier{Length: tier.Length, Rate: cloneAmount(tier.Rate)})
	}
	return clone
}

// String renders the schedule for logs and CLI output.
func (s Schedule) String() string {
	if s.Kind != ScheduleTiered {
		return fmt.Sprintf("flat(%s)", FormatRate(s.Rate))
	}
	parts := make([]string, 0, len(s.Tiers)+1)
	for _, tier := range s.Tiers {
		parts = append(parts, fmt.Sprintf("%ds@%s", tier.Length, FormatRate(tier.Rate)))
	}
	parts = append(parts, "tail@"+FormatRate(s.TailRate))
	return "tiered(" + strings.Join(parts, ", ") + ")"
}
