// Package dates extracts a single calendar date from free-form log text.
//
// A fixed, ordered list of patterns is tried and the first one that yields a
// calendar-valid date wins. The order matters: several patterns overlap.
package dates

import (
	"regexp"
	"strconv"
	"time"
)

// Date is a calendar date without time or zone
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// Time returns midnight UTC of the date
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String renders the date as YYYY-MM-DD, which is also the date-tag name
func (d Date) String() string {
	return d.Time().Format("2006-01-02")
}

const (
	fullMonths  = `(January|February|March|April|May|June|July|August|September|October|November|December)`
	shortMonths = `(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`
	ordinal     = `(st|nd|rd|th|st,|nd,|rd,|th,)?`
)

// pattern describes where the year, month and day live in a match.
// A day group of 0 means the pattern carries no day and the 1st is used.
type pattern struct {
	name       string
	re         *regexp.Regexp
	year       int
	month      int
	day        int
	namedMonth bool
}

var patterns = []pattern{
	{
		// 9/25/43
		name:  "short",
		re:    regexp.MustCompile(`\b([1-9]|1[0-2])/([1-9]|[12][0-9]|3[01])/(\d{2})\b`),
		year:  3,
		month: 1,
		day:   2,
	},
	{
		// May 2049
		name:       "approx",
		re:         regexp.MustCompile(`\b` + fullMonths + `\s(20\d{2})\b`),
		year:       2,
		month:      1,
		namedMonth: true,
	},
	{
		// January 25 2028
		name:       "long",
		re:         regexp.MustCompile(`\b` + fullMonths + `\s(\d{1,2})\s(20\d{2})\b`),
		year:       3,
		month:      1,
		day:        2,
		namedMonth: true,
	},
	{
		// July 3rd, 2047 / June 18th 2049
		name:       "long-ordinal",
		re:         regexp.MustCompile(`\b` + fullMonths + `\s(\d{1,2})` + ordinal + `\s(20\d{2})\b`),
		year:       4,
		month:      1,
		day:        2,
		namedMonth: true,
	},
	{
		// Mar 18th 2053
		name:       "abbrev-ordinal",
		re:         regexp.MustCompile(`\b` + shortMonths + `\s(\d{1,2})` + ordinal + `\s(20\d{2})\b`),
		year:       4,
		month:      1,
		day:        2,
		namedMonth: true,
	},
	{
		// 531008 092419, biocom stamp; time half is checked, then dropped
		name: "stamp",
		re: regexp.MustCompile(`\b([0-9]{2})(1[0-2]|0[1-9])(3[01]|[12][0-9]|0[1-9])` +
			`(\s|.)` +
			`(0[0-9]|1[0-9]|2[0-3])(0[0-9]|[1-5][0-9])(0[0-9]|[1-5][0-9])\b`),
		year:  1,
		month: 2,
		day:   3,
	},
}

var monthByPrefix = map[string]time.Month{
	"Jan": time.January, "Feb": time.February, "Mar": time.March,
	"Apr": time.April, "May": time.May, "Jun": time.June,
	"Jul": time.July, "Aug": time.August, "Sep": time.September,
	"Oct": time.October, "Nov": time.November, "Dec": time.December,
}

// Find returns the first date recognised in text.
// Each pattern is tried against its first occurrence only; a structural match
// that is not a real calendar date falls through to the next pattern.
func Find(text string) (Date, bool) {
	d, name := match(text)
	return d, name != ""
}

// Pattern reports which pattern recognised text, or "" for none
func Pattern(text string) string {
	_, name := match(text)
	return name
}

func match(text string) (Date, string) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if d, ok := p.compose(m); ok {
			return d, p.name
		}
	}
	return Date{}, ""
}

func (p pattern) compose(m []string) (Date, bool) {
	year, err := strconv.Atoi(m[p.year])
	if err != nil {
		return Date{}, false
	}
	// two-digit years always land in 2000-2099
	if year < 100 {
		year += 2000
	}

	var month time.Month
	if p.namedMonth {
		mm, ok := monthByPrefix[m[p.month][:3]]
		if !ok {
			return Date{}, false
		}
		month = mm
	} else {
		n, err := strconv.Atoi(m[p.month])
		if err != nil {
			return Date{}, false
		}
		month = time.Month(n)
	}

	day := 1
	if p.day > 0 {
		n, err := strconv.Atoi(m[p.day])
		if err != nil {
			return Date{}, false
		}
		day = n
	}

	if !valid(year, month, day) {
		return Date{}, false
	}
	return Date{Year: year, Month: month, Day: day}, true
}

// valid rejects values time.Date would silently normalise (Feb 30 -> Mar 2)
func valid(year int, month time.Month, day int) bool {
	if month < time.January || month > time.December || day < 1 {
		return false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Year() == year && t.Month() == month && t.Day() == day
}
