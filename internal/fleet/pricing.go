package fleet

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rentaldesk/rentaldesk/internal/platform/api"
	"github.com/shopspring/decimal"
)

// DaysInYear is the last day-of-year a season may cover.
const DaysInYear = 366

// DurationRange is a band of rental lengths in days, inclusive.
type DurationRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Season is a band of days of the year, inclusive.
type Season struct {
	Name     string `json:"name"`
	StartDay int    `json:"start_day"`
	EndDay   int    `json:"end_day"`
}

// Pricing is a car's seasonal price table: Rates[season][duration] is the
// daily rate for a rental starting in that season and lasting that long.
type Pricing struct {
	Durations []DurationRange     `json:"durations"`
	Seasons   []Season            `json:"seasons"`
	Rates     [][]decimal.Decimal `json:"rates"`
}

// ValidateDurations requires bands starting at day 1 that follow each other
// without gaps or overlaps. Input order does not matter.
func ValidateDurations(ranges []DurationRange) error {
	if len(ranges) == 0 {
		return errors.New("at least one duration is required")
	}
	for _, r := range ranges {
		if r.From < 1 {
			return fmt.Errorf("duration %d-%d must start at day 1 or later", r.From, r.To)
		}
		if r.From > r.To {
			return fmt.Errorf("duration %d-%d ends before it starts", r.From, r.To)
		}
	}

	sorted := append([]DurationRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })

	if sorted[0].From != 1 {
		return fmt.Errorf("durations must start at day 1, first starts at %d", sorted[0].From)
	}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		switch {
		case next.From > prev.To+1:
			return fmt.Errorf("gap detected between %d and %d", prev.To, next.From)
		case next.From <= prev.To:
			return fmt.Errorf("overlap detected between %d-%d and %d-%d", prev.From, prev.To, next.From, next.To)
		}
	}
	return nil
}

// ValidateSeasons requires seasons that together cover every day of the
// year exactly once.
func ValidateSeasons(seasons []Season) error {
	if len(seasons) == 0 {
		return errors.New("at least one season is required")
	}
	for _, s := range seasons {
		if s.StartDay < 1 || s.EndDay > DaysInYear {
			return fmt.Errorf("season %q must lie within days 1-%d", s.Name, DaysInYear)
		}
		if s.StartDay > s.EndDay {
			return fmt.Errorf("season %q ends before it starts", s.Name)
		}
	}

	sorted := append([]Season(nil), seasons...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartDay < sorted[j].StartDay })

	if sorted[0].StartDay != 1 {
		return fmt.Errorf("gap detected between 1 and %d", sorted[0].StartDay)
	}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		switch {
		case next.StartDay > prev.EndDay+1:
			return fmt.Errorf("gap detected between %d and %d", prev.EndDay, next.StartDay)
		case next.StartDay <= prev.EndDay:
			return fmt.Errorf("overlap detected between %q and %q", prev.Name, next.Name)
		}
	}
	if last := sorted[len(sorted)-1]; last.EndDay != DaysInYear {
		return fmt.Errorf("gap detected between %d and %d", last.EndDay, DaysInYear)
	}
	return nil
}

// validateRates checks the matrix shape against the table's axes.
func validateRates(p Pricing) error {
	if len(p.Rates) != len(p.Seasons) {
		return fmt.Errorf("expected %d rows of rates, one per season, got %d", len(p.Seasons), len(p.Rates))
	}
	for i, row := range p.Rates {
		if len(row) != len(p.Durations) {
			return fmt.Errorf("row %d: expected %d rates, one per duration, got %d", i, len(p.Durations), len(row))
		}
		for j, rate := range row {
			if rate.IsNegative() {
				return fmt.Errorf("row %d column %d: rate must not be negative", i, j)
			}
		}
	}
	return nil
}

// Validate reports every failing part of the table.
func (p Pricing) Validate() error {
	verr := &api.ValidationError{}
	if err := ValidateDurations(p.Durations); err != nil {
		verr.Add("pricing.durations", err.Error())
	}
	if err := ValidateSeasons(p.Seasons); err != nil {
		verr.Add("pricing.seasons", err.Error())
	}
	if len(verr.Fields) == 0 {
		if err := validateRates(p); err != nil {
			verr.Add("pricing.rates", err.Error())
		}
	}
	return verr.OrNil()
}

// Rate returns the daily rate for a rental starting on dayOfYear and
// lasting days. ok is false when the table has no matching cell.
func (p Pricing) Rate(dayOfYear, days int) (rate decimal.Decimal, ok bool) {
	season, duration := -1, -1
	for i, s := range p.Seasons {
		if dayOfYear >= s.StartDay && dayOfYear <= s.EndDay {
			season = i
			break
		}
	}
	for j, d := range p.Durations {
		if days >= d.From && days <= d.To {
			duration = j
			break
		}
	}
	if season < 0 || duration < 0 || season >= len(p.Rates) || duration >= len(p.Rates[season]) {
		return decimal.Zero, false
	}
	return p.Rates[season][duration], true
}

// Lowest is the cheapest daily rate in the table, shown as a "from" price.
func (p Pricing) Lowest() decimal.Decimal {
	var lowest decimal.Decimal
	found := false
	for _, row := range p.Rates {
		for _, rate := range row {
			if !found || rate.LessThan(lowest) {
				lowest, found = rate, true
			}
		}
	}
	return lowest
}
