package poller

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Wake schedules use the classic 5-field cron layout (minute, hour, day of
// month, month, day of week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// untilNextCron returns how long to sleep from now until the expression's
// next fire. A malformed expression yields 0 and the caller falls back to
// the fixed interval.
func untilNextCron(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
