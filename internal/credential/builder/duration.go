package builder

import (
	"strconv"
	"strings"
	"time"

	dErrors "attestia/pkg/domain-errors"
)

// isoDuration holds the components of a PnYnMnDTnHnMnS duration as used by
// expiration policies ("P1Y", "P30D", "PT12H", "P1Y6M"). Years and months
// are applied calendar-wise when added to a timestamp, so parsing keeps the
// components rather than flattening to a time.Duration.
type isoDuration struct {
	years, months, days     int
	hours, minutes, seconds int
}

func parseISODuration(s string) (isoDuration, error) {
	var d isoDuration
	if len(s) < 2 || s[0] != 'P' {
		return d, dErrors.New(dErrors.CodeInvalidInput, "invalid ISO-8601 duration: "+s)
	}
	rest := s[1:]
	datePart, timePart, _ := strings.Cut(rest, "T")

	if err := parseDurationPart(datePart, map[byte]*int{
		'Y': &d.years, 'M': &d.months, 'D': &d.days,
	}); err != nil {
		return isoDuration{}, err
	}
	if err := parseDurationPart(timePart, map[byte]*int{
		'H': &d.hours, 'M': &d.minutes, 'S': &d.seconds,
	}); err != nil {
		return isoDuration{}, err
	}
	if d == (isoDuration{}) {
		return d, dErrors.New(dErrors.CodeInvalidInput, "empty ISO-8601 duration: "+s)
	}
	return d, nil
}

func parseDurationPart(part string, fields map[byte]*int) error {
	num := ""
	for i := 0; i < len(part); i++ {
		ch := part[i]
		if ch >= '0' && ch <= '9' {
			num += string(ch)
			continue
		}
		target, ok := fields[ch]
		if !ok || num == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid ISO-8601 duration component: "+part)
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid ISO-8601 duration component")
		}
		*target = n
		num = ""
	}
	if num != "" {
		return dErrors.New(dErrors.CodeInvalidInput, "trailing digits in ISO-8601 duration: "+part)
	}
	return nil
}

// add applies the duration to t, calendar arithmetic for Y/M/D and exact
// arithmetic for the time fields.
func (d isoDuration) add(t time.Time) time.Time {
	t = t.AddDate(d.years, d.months, d.days)
	return t.Add(time.Duration(d.hours)*time.Hour +
		time.Duration(d.minutes)*time.Minute +
		time.Duration(d.seconds)*time.Second)
}
