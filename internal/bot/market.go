package bot

import (
	"fmt"
	"time"

	"oneil/pkg/model"
)

// MarketHours describes a market's regular trading session in its local time.
type MarketHours struct {
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
}

var sessionHours = map[model.Market]MarketHours{
	model.MarketUS: {OpenHour: 9, OpenMin: 30, CloseHour: 16, CloseMin: 0},
	model.MarketKR: {OpenHour: 9, OpenMin: 0, CloseHour: 15, CloseMin: 30},
}

// MarketStatus describes whether a market is currently in its regular session.
type MarketStatus struct {
	Market    model.Market
	IsOpen    bool
	Reason    string // "open", "weekend", "pre-market", "after-hours"
	LocalTime time.Time
}

// marketLocation returns the market's local time zone, with a fixed-offset
// fallback when the tz database is unavailable (common in minimal containers).
func marketLocation(market model.Market) *time.Location {
	switch market {
	case model.MarketKR:
		loc, err := time.LoadLocation("Asia/Seoul")
		if err != nil {
			return time.FixedZone("KST", 9*60*60)
		}
		return loc
	default:
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			// EST fallback; off by an hour during DST but better than UTC.
			return time.FixedZone("EST", -5*60*60)
		}
		return loc
	}
}

// GetMarketStatus reports the session state of a market at time t.
func GetMarketStatus(market model.Market, t time.Time) MarketStatus {
	local := t.In(marketLocation(market))
	status := MarketStatus{Market: market, LocalTime: local}

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		status.Reason = "weekend"
		return status
	}

	hours, ok := sessionHours[market]
	if !ok {
		hours = sessionHours[model.MarketUS]
	}

	minutes := local.Hour()*60 + local.Minute()
	open := hours.OpenHour*60 + hours.OpenMin
	close := hours.CloseHour*60 + hours.CloseMin

	switch {
	case minutes < open:
		status.Reason = "pre-market"
	case minutes >= close:
		status.Reason = "after-hours"
	default:
		status.IsOpen = true
		status.Reason = "open"
	}
	return status
}

// IsMarketOpen reports whether the market is in its regular session right now.
func IsMarketOpen(market model.Market) bool {
	return GetMarketStatus(market, time.Now()).IsOpen
}

// FormatDuration renders a duration as "2h 30m" for status replies.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d - h*time.Hour) / time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// NextOpen returns the next session open for a market at or after t.
func NextOpen(market model.Market, t time.Time) time.Time {
	loc := marketLocation(market)
	hours := sessionHours[market]
	local := t.In(loc)

	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		open := time.Date(day.Year(), day.Month(), day.Day(), hours.OpenHour, hours.OpenMin, 0, 0, loc)
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if open.After(t) {
			return open
		}
	}
	return local // unreachable with an 8-day horizon
}
