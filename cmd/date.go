package cmd

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const reportingDayFormat = "2006-01-02"

// ParsedDate is a datestring along with the precision it was written in.
type ParsedDate struct {
	Date  time.Time
	Year  bool
	Month bool
	Day   bool
}

// parseReportingDay accepts exactly one YYYY-MM-DD day.
func parseReportingDay(ds string) (time.Time, error) {
	date, err := parseSingleDatestring(ds)
	if err != nil {
		return time.Time{}, fmt.Errorf("reporting day: %w", err)
	}
	if !date.Day {
		return time.Time{}, fmt.Errorf("reporting day: expected YYYY-MM-DD, got %q", ds)
	}
	return date.Date, nil
}

// parseDateRange reads "start" or "start,end". A single date covers the whole
// year, month or day it names. end is exclusive.
func parseDateRange(s string) (start time.Time, end time.Time, err error) {
	args := strings.Split(s, ",")
	for i := range args {
		args[i] = strings.TrimSpace(args[i])
	}
	start, end, err = parseDateRangeFromArgs(args)
	if err != nil {
		return
	}
	if !end.After(start) {
		err = fmt.Errorf("End date %s must be after start date %s", end.Format(reportingDayFormat), start.Format(reportingDayFormat))
	}
	return
}

func parseDateRangeFromArgs(args []string) (start time.Time, end time.Time, err error) {
	switch len(args) {
	case 1:
		start, end, err = getImplicitDateRange(args[0])

	case 2:
		start, end, err = getExplicitDateRange(args[0], args[1])

	default:
		err = fmt.Errorf("Expected one or two date arguments")
	}
	return
}

func getImplicitDateRange(ds string) (start time.Time, end time.Time, err error) {
	date, err := parseSingleDatestring(ds)
	if err != nil {
		return
	}

	start = date.Date
	switch {
	case date.Year:
		end = start.AddDate(1, 0, 0)

	case date.Month:
		end = start.AddDate(0, 1, 0)

	case date.Day:
		end = start.AddDate(0, 0, 1)

	default:
		err = fmt.Errorf("Invalid format: %q", ds)
	}

	return
}

func getExplicitDateRange(startString, endString string) (start time.Time, end time.Time, err error) {
	startParsed, err := parseSingleDatestring(startString)
	if err != nil {
		return
	}
	start = startParsed.Date

	endParsed, err := parseSingleDatestring(endString)
	if err != nil {
		return
	}
	end = endParsed.Date

	return
}

var datestringFormats = []struct {
	pattern *regexp.Regexp
	layout  string
	name    string
}{
	{regexp.MustCompile(`^\d{4}$`), "2006", "year"},
	{regexp.MustCompile(`^\d{4}-\d{2}$`), "2006-01", "month"},
	{regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`), reportingDayFormat, "day"},
}

func parseSingleDatestring(ds string) (date ParsedDate, err error) {
	for _, f := range datestringFormats {
		if !f.pattern.MatchString(ds) {
			continue
		}
		date.Date, err = time.Parse(f.layout, ds)
		if err != nil {
			err = fmt.Errorf("Parsing datestring as %s: %w", f.name, err)
			return
		}
		switch f.name {
		case "year":
			date.Year = true
		case "month":
			date.Month = true
		default:
			date.Day = true
		}
		return
	}

	err = fmt.Errorf("Invalid format: %q", ds)
	return
}

// reportingDays lists every day in [start, end) as YYYY-MM-DD.
func reportingDays(start, end time.Time) []string {
	var days []string
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d.Format(reportingDayFormat))
	}
	return days
}
