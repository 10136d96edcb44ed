package event

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ExportOptions configure Export.
type ExportOptions struct {
	ImageBaseURL string
	Location     *time.Location // for event dates; nil means local time
	Now          func() time.Time
}

// Export writes events as an iCalendar feed. Events without a time of day
// become all-day events.
func Export(w io.Writer, events []Event, opts ExportOptions) error {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//eventdeck//events//EN")

	stamp := opts.Now().UTC()
	for _, ev := range events {
		start, timed, err := ev.Start(opts.Location)
		if err != nil {
			return fmt.Errorf("event: exporting %q: bad date: %w", ev.ID, err)
		}
		ve := cal.AddEvent(ev.ID + "@eventdeck")
		ve.SetDtStampTime(stamp)
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if timed {
			ve.SetStartAt(start)
			ve.SetEndAt(start.Add(time.Hour))
		} else {
			ve.SetAllDayStartAt(start)
			ve.SetAllDayEndAt(start.AddDate(0, 0, 1))
		}
		if u := ImageURL(opts.ImageBaseURL, ev.Image); u != "" {
			ve.SetURL(u)
		}
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("event: writing calendar: %w", err)
	}
	return nil
}
