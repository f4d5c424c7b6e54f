package domain

import (
	"fmt"
	"strings"
)

// Calendar names the calendar a date is expressed in.
type Calendar string

const (
	CalendarGregorian Calendar = "gregorian"
	CalendarJulian    Calendar = "julian"
	CalendarHebrew    Calendar = "hebrew"
	CalendarFrench    Calendar = "french"
	CalendarPersian   Calendar = "persian"
	CalendarIslamic   Calendar = "islamic"
)

// DateModifier qualifies a date value.
type DateModifier string

const (
	ModNone     DateModifier = ""
	ModBefore   DateModifier = "before"
	ModAfter    DateModifier = "after"
	ModAbout    DateModifier = "about"
	ModRange    DateModifier = "range"
	ModSpan     DateModifier = "span"
	ModTextOnly DateModifier = "textonly"
)

// DateQuality records how a date was obtained.
type DateQuality string

const (
	QualityRegular    DateQuality = ""
	QualityEstimated  DateQuality = "estimated"
	QualityCalculated DateQuality = "calculated"
)

// DateValue is a partially known calendar day. Zero fields are unknown.
type DateValue struct {
	Year  int `json:"year,omitempty"`
	Month int `json:"month,omitempty"`
	Day   int `json:"day,omitempty"`
}

// IsZero reports whether no part of the value is known.
func (v DateValue) IsZero() bool { return v.Year == 0 && v.Month == 0 && v.Day == 0 }

func (v DateValue) sortValue() int { return v.Year*10000 + v.Month*100 + v.Day }

func (v DateValue) String() string {
	switch {
	case v.IsZero():
		return ""
	case v.Month == 0:
		return fmt.Sprintf("%04d", v.Year)
	case v.Day == 0:
		return fmt.Sprintf("%04d-%02d", v.Year, v.Month)
	}
	return fmt.Sprintf("%04d-%02d-%02d", v.Year, v.Month, v.Day)
}

// Date is a structured, possibly partial or compound, calendar value.
// Stop is only meaningful for range and span modifiers.
type Date struct {
	Calendar Calendar     `json:"calendar,omitempty"`
	Modifier DateModifier `json:"modifier,omitempty"`
	Quality  DateQuality  `json:"quality,omitempty"`
	Start    DateValue    `json:"start"`
	Stop     DateValue    `json:"stop"`
	Text     string       `json:"text,omitempty"`
}

// YearDate builds a regular date known only to the year.
func YearDate(year int) Date { return Date{Start: DateValue{Year: year}} }

// DayDate builds a regular date with full precision.
func DayDate(year, month, day int) Date {
	return Date{Start: DateValue{Year: year, Month: month, Day: day}}
}

// IsEmpty reports whether the date carries no calendar value.
func (d Date) IsEmpty() bool {
	return d.Modifier == ModTextOnly || d.Start.IsZero()
}

// IsCompound reports whether the date spans two values.
func (d Date) IsCompound() bool { return d.Modifier == ModRange || d.Modifier == ModSpan }

// Year returns the start year, or zero when unknown.
func (d Date) Year() int {
	if d.Modifier == ModTextOnly {
		return 0
	}
	return d.Start.Year
}

// SortValue orders dates by their start value. Empty dates sort as zero.
func (d Date) SortValue() int {
	if d.IsEmpty() {
		return 0
	}
	return d.Start.sortValue()
}

// Validate checks the ranges of the known date parts.
func (d Date) Validate() error {
	check := func(v DateValue) error {
		if v.Month < 0 || v.Month > 12 {
			return fmt.Errorf("invalid month %d", v.Month)
		}
		if v.Day < 0 || v.Day > 31 {
			return fmt.Errorf("invalid day %d", v.Day)
		}
		if v.Day != 0 && v.Month == 0 {
			return fmt.Errorf("day %d without month", v.Day)
		}
		return nil
	}
	if err := check(d.Start); err != nil {
		return err
	}
	if d.IsCompound() {
		if err := check(d.Stop); err != nil {
			return err
		}
		if !d.Stop.IsZero() && d.Stop.sortValue() < d.Start.sortValue() {
			return fmt.Errorf("date range ends before it starts")
		}
	} else if !d.Stop.IsZero() {
		return fmt.Errorf("stop value set on non compound date")
	}
	return nil
}

func (d Date) String() string {
	if d.Modifier == ModTextOnly {
		return d.Text
	}
	if d.Start.IsZero() {
		return d.Text
	}
	var b strings.Builder
	if d.Quality != QualityRegular {
		b.WriteString(string(d.Quality))
		b.WriteByte(' ')
	}
	switch d.Modifier {
	case ModRange:
		fmt.Fprintf(&b, "between %s and %s", d.Start, d.Stop)
	case ModSpan:
		fmt.Fprintf(&b, "from %s to %s", d.Start, d.Stop)
	case ModNone:
		b.WriteString(d.Start.String())
	default:
		fmt.Fprintf(&b, "%s %s", d.Modifier, d.Start)
	}
	if d.Calendar != "" && d.Calendar != CalendarGregorian {
		fmt.Fprintf(&b, " (%s)", d.Calendar)
	}
	return b.String()
}
