// Package slots computes the delivery time slots offered at checkout.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"krayotmarket/internal/models"
)

// Defaults for the business window.
const (
	DefaultHourStart = 8
	DefaultHourEnd   = 20
	DefaultLeadHours = 2
	DefaultCapacity  = 5
)

// TomorrowPrefix precedes the label of every next-day slot.
const TomorrowPrefix = "מחר"

// Calculator offers whole-hour slots within [HourStart, HourEnd] at least
// LeadHours after now.
type Calculator struct {
	HourStart int
	HourEnd   int
	LeadHours int
}

// NewCalculator returns a calculator with the default business window.
func NewCalculator() Calculator {
	return Calculator{
		HourStart: DefaultHourStart,
		HourEnd:   DefaultHourEnd,
		LeadHours: DefaultLeadHours,
	}
}

// Compute returns the ordered slots offerable at now, in now's location.
func (c Calculator) Compute(now time.Time) []models.DeliverySlot {
	hour := now.Hour()
	if hour >= c.HourEnd || hour < c.HourStart {
		return c.tomorrow(now)
	}

	earliest := c.Earliest(now)
	if earliest > c.HourEnd {
		return c.tomorrow(now)
	}

	start := c.HourStart
	if earliest > start {
		start = earliest
	}
	day := dateKey(now)
	slots := make([]models.DeliverySlot, 0, c.HourEnd-start+1)
	for h := start; h <= c.HourEnd; h++ {
		slots = append(slots, models.DeliverySlot{
			Value: fmt.Sprintf("%s %d", day, h),
			Label: hourLabel(h),
			Hour:  h,
		})
	}
	return slots
}

// Earliest returns the first offerable hour for today: now + lead, rounded up
// to the next whole hour when any minutes remain. The result may exceed 23
// when the lead crosses midnight.
func (c Calculator) Earliest(now time.Time) int {
	lead := now.Add(time.Duration(c.LeadHours) * time.Hour)
	h := lead.Hour()
	if lead.YearDay() != now.YearDay() || lead.Year() != now.Year() {
		h += 24
	}
	// Only minutes round up; seconds are ignored.
	if lead.Minute() > 0 {
		h++
	}
	return h
}

func (c Calculator) tomorrow(now time.Time) []models.DeliverySlot {
	day := dateKey(now.AddDate(0, 0, 1))
	slots := make([]models.DeliverySlot, 0, c.HourEnd-c.HourStart+1)
	for h := c.HourStart; h <= c.HourEnd; h++ {
		slots = append(slots, models.DeliverySlot{
			Value: fmt.Sprintf("%s %d", day, h),
			Label: TomorrowPrefix + " " + hourLabel(h),
			Hour:  h,
		})
	}
	return slots
}

// FilterByCapacity keeps the slots whose placed-order count is below ceiling.
func FilterByCapacity(slots []models.DeliverySlot, counts map[string]int, ceiling int) []models.DeliverySlot {
	out := make([]models.DeliverySlot, 0, len(slots))
	for _, s := range slots {
		if counts[s.Value] < ceiling {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether key is one of the slots.
func Contains(slots []models.DeliverySlot, key string) bool {
	for _, s := range slots {
		if s.Value == key {
			return true
		}
	}
	return false
}

// FormatKey renders a slot key as "dd/mm/yyyy HH:00". Keys that do not parse
// are returned unchanged.
func FormatKey(key string) string {
	parts := strings.Fields(key)
	if len(parts) < 2 {
		return key
	}
	d, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return key
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return key
	}
	return fmt.Sprintf("%s %s", d.Format("02/01/2006"), hourLabel(h))
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
