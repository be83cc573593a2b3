package calendar

import (
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestRangeForBEDateParamMatchesWorkedExample(t *testing.T) {
	is := is.New(t)

	start, end, err := RangeForBEDateParam("07/07/2568")
	is.NoErr(err)

	wantStart := time.Date(2025, 7, 6, 17, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2025, 7, 7, 17, 0, 0, 0, time.UTC)
	is.True(start.Equal(wantStart))
	is.True(end.Equal(wantEnd))
}

func TestFormatBERoundTrips(t *testing.T) {
	is := is.New(t)

	start, _, err := RangeForBEDateParam("07/07/2568")
	is.NoErr(err)

	is.Equal(FormatBE(start), "07/07/2568")
}

func TestParseBEDateRejectsMalformedInput(t *testing.T) {
	is := is.New(t)

	_, err := ParseBEDate("not-a-date")
	is.True(err != nil)

	_, err = ParseBEDate("31/02/2568")
	is.True(err != nil)
}

func TestDayRangeUTCIsExclusiveOnEnd(t *testing.T) {
	is := is.New(t)

	start, end, err := RangeForBEDateParam("01/01/2567")
	is.NoErr(err)

	is.True(end.Sub(start) == 24*time.Hour)
}
