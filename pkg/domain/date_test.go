package domain

import "testing"

func TestDateString(t *testing.T) {
	cases := []struct {
		date Date
		want string
	}{
		{DayDate(1901, 2, 3), "1901-02-03"},
		{YearDate(1850), "1850"},
		{Date{Modifier: ModAbout, Start: DateValue{Year: 1700, Month: 5}}, "about 1700-05"},
		{Date{Modifier: ModRange, Start: DateValue{Year: 1800}, Stop: DateValue{Year: 1810}}, "between 1800 and 1810"},
		{Date{Modifier: ModTextOnly, Text: "in the spring"}, "in the spring"},
		{Date{Quality: QualityEstimated, Start: DateValue{Year: 1900}}, "estimated 1900"},
	}
	for _, tc := range cases {
		if got := tc.date.String(); got != tc.want {
			t.Fatalf("String() = %q, want %q", got, tc.want)
		}
	}
}

func TestDateValidate(t *testing.T) {
	valid := []Date{
		{},
		DayDate(2000, 12, 31),
		{Modifier: ModSpan, Start: DateValue{Year: 1900}, Stop: DateValue{Year: 1910}},
	}
	for _, d := range valid {
		if err := d.Validate(); err != nil {
			t.Fatalf("%v: unexpected error %v", d, err)
		}
	}
	invalid := []Date{
		DayDate(2000, 13, 1),
		{Start: DateValue{Year: 2000, Day: 4}},
		{Modifier: ModRange, Start: DateValue{Year: 1910}, Stop: DateValue{Year: 1900}},
		{Start: DateValue{Year: 1900}, Stop: DateValue{Year: 1901}},
	}
	for _, d := range invalid {
		if err := d.Validate(); err == nil {
			t.Fatalf("%+v: expected validation error", d)
		}
	}
}

func TestDateOrdering(t *testing.T) {
	if !(YearDate(1900).SortValue() < DayDate(1900, 1, 1).SortValue()) {
		t.Fatal("year-only date should sort before a full date in the same year")
	}
	if (Date{Modifier: ModTextOnly, Start: DateValue{Year: 1900}}).Year() != 0 {
		t.Fatal("text-only dates have no year")
	}
	if !(Date{Text: "sometime"}).IsEmpty() {
		t.Fatal("date without start value is empty")
	}
}
