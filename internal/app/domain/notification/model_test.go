package notification

import (
	"testing"
	"time"

	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
)

func at(h, m int) time.Time {
	return time.Date(2026, time.January, 10, h, m, 0, 0, time.UTC)
}

func TestQuietHoursOvernight(t *testing.T) {
	s := DefaultSetting(1)
	s.QuietHoursEnabled = true

	cases := map[time.Time]bool{
		at(23, 30): true,
		at(3, 0):   true,
		at(12, 0):  false,
		at(22, 0):  false,
		at(7, 0):   false,
	}
	for now, want := range cases {
		if got := s.InQuietHours(now); got != want {
			t.Fatalf("%s: expected quiet=%v, got %v", now.Format("15:04"), want, got)
		}
	}
}

func TestQuietHoursSameDay(t *testing.T) {
	s := DefaultSetting(1)
	s.QuietHoursEnabled = true
	s.QuietHoursStart = "09:00"
	s.QuietHoursEnd = "17:00:00"

	if !s.InQuietHours(at(9, 0)) || !s.InQuietHours(at(17, 0)) {
		t.Fatalf("window bounds are inclusive")
	}
	if s.InQuietHours(at(18, 0)) {
		t.Fatalf("18:00 is outside the window")
	}
}

func TestQuietHoursEndIsExact(t *testing.T) {
	s := DefaultSetting(1)
	s.QuietHoursEnabled = true
	s.QuietHoursStart = "09:00"
	s.QuietHoursEnd = "17:00"

	if s.InQuietHours(at(17, 0).Add(30 * time.Second)) {
		t.Fatalf("17:00:30 is past the end of the window")
	}
	if !s.InQuietHours(at(16, 59).Add(59 * time.Second)) {
		t.Fatalf("16:59:59 is inside the window")
	}

	s.QuietHoursStart, s.QuietHoursEnd = "22:00", "07:00"
	if s.InQuietHours(at(7, 0).Add(30 * time.Second)) {
		t.Fatalf("07:00:30 is past the end of the overnight window")
	}
	if !s.InQuietHours(at(6, 59).Add(30 * time.Second)) {
		t.Fatalf("06:59:30 is inside the overnight window")
	}
}

func TestChannelsFor(t *testing.T) {
	s := DefaultSetting(1)
	s.SMSEnabled = true

	got := s.ChannelsFor(alert.TypeFall, alert.SeverityMedium, at(12, 0))
	if len(got) != 2 || got[0] != ChannelEmail || got[1] != ChannelPush {
		t.Fatalf("medium alert should go to email and push, got %v", got)
	}

	got = s.ChannelsFor(alert.TypeFall, alert.SeverityHigh, at(12, 0))
	if len(got) != 3 {
		t.Fatalf("high alert should reach all channels, got %v", got)
	}

	if got := s.ChannelsFor(alert.TypeOther, alert.SeverityCritical, at(12, 0)); len(got) != 0 {
		t.Fatalf("types without a toggle are never sent, got %v", got)
	}

	s.PushForFall = false
	got = s.ChannelsFor(alert.TypeFall, alert.SeverityMedium, at(12, 0))
	if len(got) != 1 || got[0] != ChannelEmail {
		t.Fatalf("disabled type flag should drop push, got %v", got)
	}
}

func TestChannelsForQuietHoursCriticalBypass(t *testing.T) {
	s := DefaultSetting(1)
	s.QuietHoursEnabled = true

	if got := s.ChannelsFor(alert.TypeFireSmoke, alert.SeverityHigh, at(23, 0)); len(got) != 0 {
		t.Fatalf("quiet hours should suppress high alerts, got %v", got)
	}
	if got := s.ChannelsFor(alert.TypeFireSmoke, alert.SeverityCritical, at(23, 0)); len(got) == 0 {
		t.Fatalf("critical alerts bypass quiet hours")
	}
}

func TestMinSeverityFallback(t *testing.T) {
	s := DefaultSetting(1)
	s.MinSeveritySMS = "bogus"
	if s.MinSeverity(ChannelSMS) != alert.SeverityHigh {
		t.Fatalf("unknown sms threshold should fall back to high")
	}
	if errs := s.Validate(); len(errs) != 1 {
		t.Fatalf("expected one validation error, got %v", errs)
	}
}

func TestAlertMessage(t *testing.T) {
	a := alert.Alert{AlertType: alert.TypeFireSmoke, Confidence: 0.876}
	if got := AlertTitle(a.AlertType); got != "ALERT: Fire and Smoke detected" {
		t.Fatalf("unexpected title %q", got)
	}
	want := "Fire and Smoke detected at Lobby (Unknown location) with 0.88 confidence."
	if got := AlertMessage(a, "Lobby", ""); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
