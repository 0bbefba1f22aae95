package events

import (
	"fmt"
	"strings"
	"time"
)

// GenerateICS renders occurrences as an iCalendar document. Records whose
// start cannot be parsed are left out.
func GenerateICS(occs []Occurrence, now time.Time) string {
	var ics strings.Builder

	ics.WriteString("BEGIN:VCALENDAR\r\n")
	ics.WriteString("VERSION:2.0\r\n")
	ics.WriteString("PRODID:-//Club Rides//club-rides//EN\r\n")
	ics.WriteString("CALSCALE:GREGORIAN\r\n")
	ics.WriteString("METHOD:PUBLISH\r\n")

	stamp := formatICSTime(now)
	for _, o := range occs {
		start, err := ParseOccurrence(o.StartDate)
		if err != nil {
			continue
		}
		end, err := time.Parse(endDateLayout, o.EndDate)
		if err != nil {
			end = start.AddDate(0, 0, 1)
		}

		ics.WriteString("BEGIN:VEVENT\r\n")
		ics.WriteString(fmt.Sprintf("UID:%d-%s@club-rides\r\n", o.ID, formatICSTime(start)))
		ics.WriteString(fmt.Sprintf("DTSTAMP:%s\r\n", stamp))
		ics.WriteString(fmt.Sprintf("DTSTART:%s\r\n", formatICSTime(start)))
		ics.WriteString(fmt.Sprintf("DTEND:%s\r\n", formatICSTime(end)))
		ics.WriteString(fmt.Sprintf("SUMMARY:%s\r\n", escapeICS(o.Title)))

		description := fmt.Sprintf("%s\nDistance: %s", o.ClubName, o.Distance)
		if o.Description != "" {
			description += "\n\n" + o.Description
		}
		ics.WriteString(fmt.Sprintf("DESCRIPTION:%s\r\n", escapeICS(description)))
		if o.Address != "" {
			ics.WriteString(fmt.Sprintf("LOCATION:%s\r\n", escapeICS(o.Address)))
		}
		ics.WriteString(fmt.Sprintf("URL:%s\r\n", o.Link))
		ics.WriteString("STATUS:CONFIRMED\r\n")
		ics.WriteString("END:VEVENT\r\n")
	}

	ics.WriteString("END:VCALENDAR\r\n")
	return ics.String()
}

// formatICSTime formats a time.Time as an iCalendar datetime string
func formatICSTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// escapeICS escapes text values per RFC 5545
func escapeICS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
