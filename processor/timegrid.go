package processor

import (
	"fmt"
	"time"
)

// Granularity selects the period length of a market day grid.
type Granularity int

const (
	Hourly Granularity = iota
	Quarterly
)

// madrid is the market timezone. Day boundaries, period labels and DST
// transitions are all evaluated in this zone.
var madrid *time.Location

// refZone is the fixed-offset zone used for reference timestamps. It never
// observes DST, so consecutive market days always produce strictly
// increasing reference instants.
var refZone = time.FixedZone("UTC+1", 3600)

func init() {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		// CET with Madrid's transition rules is the only zone the engine
		// supports; without tzdata the grids would be silently wrong.
		panic(fmt.Sprintf("load Europe/Madrid timezone: %v", err))
	}
	madrid = loc
}

// DayContext holds the resolved time grid for one market day: the local
// day boundaries, the number of periods the day actually has, and the
// period labels paired index-for-index with their starting instants.
type DayContext struct {
	Date   time.Time // midnight local, start of day
	End    time.Time // midnight local, start of next day
	Hours  int       // 23, 24 or 25
	Gran   Granularity
	Labels []string
	Times  []time.Time // period starts, same length as Labels
}

// Periods returns the number of grid slots in the day.
func (d *DayContext) Periods() int { return len(d.Labels) }

// Index returns the grid position of a period label, or -1.
func (d *DayContext) Index(label string) int {
	for i, l := range d.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// BuildDayContext resolves the grid for the civil date given as YYYYMMDD.
// Short days (spring transition) yield 23 hours, long days (autumn) 25.
func BuildDayContext(date string, g Granularity) (*DayContext, error) {
	day, err := time.ParseInLocation("20060102", date, madrid)
	if err != nil {
		return nil, fmt.Errorf("invalid market date %q: %w", date, err)
	}
	next := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, madrid)
	hours := int(next.Sub(day) / time.Hour)

	ctx := &DayContext{Date: day, End: next, Hours: hours, Gran: g}
	switch g {
	case Hourly:
		ctx.Labels = hourLabels(hours)
	case Quarterly:
		ctx.Labels = quarterLabels(hours)
	default:
		return nil, fmt.Errorf("unknown granularity %d", g)
	}

	step := time.Hour
	if g == Quarterly {
		step = 15 * time.Minute
	}
	ctx.Times = make([]time.Time, len(ctx.Labels))
	for i := range ctx.Times {
		// Absolute arithmetic from the day start walks through DST
		// transitions correctly: the wall clock repeats or skips, the
		// instants never do.
		ctx.Times[i] = day.Add(time.Duration(i) * step)
	}
	return ctx, nil
}

// hourLabels builds the "HH-HH" labels for a day of the given length.
// On 25-hour days the repeated 02:00 hour is split into 02-03a and
// 02-03b; on 23-hour days the missing 02-03 slot is skipped entirely.
func hourLabels(hours int) []string {
	labels := make([]string, 0, hours)
	for h := 0; h < 24; h++ {
		label := fmt.Sprintf("%02d-%02d", h, h+1)
		switch {
		case hours == 25 && h == 2:
			labels = append(labels, "02-03a", "02-03b")
		case hours == 23 && h == 2:
			// skipped hour
		default:
			labels = append(labels, label)
		}
	}
	return labels
}

// quarterLabels numbers the quarter-hour slots 1..96 on a normal day.
// A long day runs 1..100; a short day keeps the original numbering and
// drops the four quarters of the skipped hour, 9 through 12.
func quarterLabels(hours int) []string {
	labels := make([]string, 0, hours*4)
	switch hours {
	case 23:
		for q := 1; q <= 96; q++ {
			if q >= 9 && q <= 12 {
				continue
			}
			labels = append(labels, fmt.Sprintf("%d", q))
		}
	case 25:
		for q := 1; q <= 100; q++ {
			labels = append(labels, fmt.Sprintf("%d", q))
		}
	default:
		for q := 1; q <= 96; q++ {
			labels = append(labels, fmt.Sprintf("%d", q))
		}
	}
	return labels
}

// RefTimestamp projects an instant into the fixed UTC+1 reference zone.
func RefTimestamp(t time.Time) time.Time {
	return t.In(refZone)
}

// localInMadrid builds a wall-clock time on the given day and, when the
// clock is ambiguous (the repeated autumn hour), picks the occurrence
// with the wanted UTC offset: 7200 for the first pass (still on summer
// time), 3600 for the second.
func localInMadrid(year int, month time.Month, day, hour, minute, wantOffset int) time.Time {
	t := time.Date(year, month, day, hour, minute, 0, 0, madrid)
	if wantOffset != 0 {
		_, off := t.Zone()
		if off != wantOffset {
			t = t.Add(time.Duration(off-wantOffset) * time.Second)
		}
	}
	return t
}
