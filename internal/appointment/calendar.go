package appointment

import (
	"strings"
	"time"
)

const icsTimeLayout = "20060102T150405Z"

// CalendarEntry is the human-readable text shown in the exported event.
type CalendarEntry struct {
	Summary     string
	Description string
	Location    string
}

// ICS renders a single appointment as an iCalendar document with CRLF line endings.
func ICS(a Appointment, entry CalendarEntry, stamp time.Time) string {
	var b strings.Builder

	line := func(name, value string) {
		writeFolded(&b, name+":"+value)
	}

	line("BEGIN", "VCALENDAR")
	line("VERSION", "2.0")
	line("PRODID", "-//Dental Practice Portal//Appointments//EN")
	line("CALSCALE", "GREGORIAN")
	line("METHOD", "PUBLISH")
	line("BEGIN", "VEVENT")
	line("UID", a.ID.String()+"@dental-practice-portal")
	line("DTSTAMP", stamp.UTC().Format(icsTimeLayout))
	line("DTSTART", a.Start.UTC().Format(icsTimeLayout))
	line("DTEND", a.End.UTC().Format(icsTimeLayout))
	line("SUMMARY", escapeText(entry.Summary))
	line("DESCRIPTION", escapeText(entry.Description))
	if entry.Location != "" {
		line("LOCATION", escapeText(entry.Location))
	}
	line("STATUS", "CONFIRMED")
	line("END", "VEVENT")
	line("END", "VCALENDAR")

	return b.String()
}

var icsEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escapeText(s string) string {
	return icsEscaper.Replace(s)
}

// writeFolded splits content lines longer than 75 octets, continuation lines
// starting with a single space. Multi-byte runes are never split.
func writeFolded(b *strings.Builder, s string) {
	const limit = 75
	width := limit
	for len(s) > width {
		cut := width
		for cut > 0 && !isRuneStart(s[cut]) {
			cut--
		}
		b.WriteString(s[:cut])
		b.WriteString("\r\n ")
		s = s[cut:]
		width = limit - 1
	}
	b.WriteString(s)
	b.WriteString("\r\n")
}

func isRuneStart(c byte) bool {
	return c&0xC0 != 0x80
}
