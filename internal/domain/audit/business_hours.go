package audit

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // IANA zones must resolve on hosts without zoneinfo
)

// Timezone modes for BusinessHours.Timezone. Any other value is treated as an IANA zone name.
const (
	TimezoneUTC    = "utc"
	TimezoneRecord = "record" // use the location carried by each timestamp
)

// BusinessHours describes when vehicles are expected to be in use.
// A time is inside business hours when its local weekday is listed in Days
// and StartHour <= hour < EndHour.
type BusinessHours struct {
	StartHour int      `mapstructure:"start_hour" json:"start_hour" validate:"gte=0,lte=23"`
	EndHour   int      `mapstructure:"end_hour" json:"end_hour" validate:"gte=1,lte=24"`
	Days      []string `mapstructure:"days" json:"days" validate:"min=1"`
	Timezone  string   `mapstructure:"timezone" json:"timezone" validate:"required"`
}

// DefaultBusinessHours is 07:00-18:00, Monday to Friday, UTC
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		StartHour: 7,
		EndHour:   18,
		Days:      []string{"monday", "tuesday", "wednesday", "thursday", "friday"},
		Timezone:  TimezoneUTC,
	}
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (b BusinessHours) validate() error {
	if b.StartHour >= b.EndHour {
		return fmt.Errorf("business_hours.start_hour %d must be before end_hour %d", b.StartHour, b.EndHour)
	}
	for _, d := range b.Days {
		if _, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; !ok {
			return fmt.Errorf("business_hours.days: unknown weekday %q", d)
		}
	}
	if _, err := b.Clock(); err != nil {
		return err
	}
	return nil
}

// Clock is a resolved BusinessHours ready for repeated lookups
type Clock struct {
	loc   *time.Location // nil means keep each timestamp's own location
	start int
	end   int
	days  map[time.Weekday]bool
}

// Clock resolves the timezone and weekday names once
func (b BusinessHours) Clock() (Clock, error) {
	c := Clock{start: b.StartHour, end: b.EndHour, days: make(map[time.Weekday]bool, len(b.Days))}
	for _, d := range b.Days {
		if wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(d))]; ok {
			c.days[wd] = true
		}
	}

	switch tz := strings.TrimSpace(b.Timezone); strings.ToLower(tz) {
	case "", TimezoneUTC:
		c.loc = time.UTC
	case TimezoneRecord:
		c.loc = nil
	default:
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return Clock{}, fmt.Errorf("business_hours.timezone %q: %w", tz, err)
		}
		c.loc = loc
	}
	return c, nil
}

// Local converts t into the configured zone
func (c Clock) Local(t time.Time) time.Time {
	if c.loc == nil {
		return t
	}
	return t.In(c.loc)
}

// IsBusinessDay reports whether t falls on a configured working day
func (c Clock) IsBusinessDay(t time.Time) bool {
	return c.days[c.Local(t).Weekday()]
}

// IsBusinessTime reports whether t is inside business hours
func (c Clock) IsBusinessTime(t time.Time) bool {
	lt := c.Local(t)
	if !c.days[lt.Weekday()] {
		return false
	}
	h := lt.Hour()
	return h >= c.start && h < c.end
}
