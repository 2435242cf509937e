package notifx_test

import (
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/notifx"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testAccounts() []notifx.Account {
	return []notifx.Account{
		{Name: "system", Type: notifx.EmailTypeSystem, Email: "system@acme.org", HourlyLimit: 500},
		{Name: "events", Type: notifx.EmailTypeEvents, Email: "events@acme.org", HourlyLimit: 500},
		{Name: "bulk-1", Type: notifx.EmailTypeBulk, Email: "bulk1@acme.org", HourlyLimit: 500},
		{Name: "bulk-2", Type: notifx.EmailTypeBulk, Email: "bulk2@acme.org", HourlyLimit: 500},
	}
}

func mustSelect(t *testing.T, p *notifx.AccountPool, et notifx.EmailType) string {
	t.Helper()
	a, err := p.Select(et)
	if err != nil {
		t.Fatalf("Select(%q): %v", et, err)
	}
	return a.Name
}

func TestSelectByType(t *testing.T) {
	p := notifx.NewAccountPool(testAccounts())

	if got := mustSelect(t, p, notifx.EmailTypeEvents); got != "events" {
		t.Fatalf("events -> %s", got)
	}
	if got := mustSelect(t, p, notifx.EmailTypeAdmin); got != "system" {
		t.Fatalf("admin without account should fall back to system, got %s", got)
	}
	if got := mustSelect(t, p, ""); got != "system" {
		t.Fatalf("untyped -> %s", got)
	}
}

func TestBulkRoundRobin(t *testing.T) {
	p := notifx.NewAccountPool(testAccounts())

	got := []string{
		mustSelect(t, p, notifx.EmailTypeBulk),
		mustSelect(t, p, notifx.EmailTypeBulk),
		mustSelect(t, p, notifx.EmailTypeBulk),
	}
	want := []string{"bulk-1", "bulk-2", "bulk-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rotation %v, want %v", got, want)
		}
	}
}

func TestUnhealthyAccountRecovers(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	p := notifx.NewAccountPool(testAccounts(), notifx.WithClock(clock.now), notifx.WithFailureThreshold(3))

	for range 3 {
		p.RecordFailure("events")
	}
	if got := mustSelect(t, p, notifx.EmailTypeEvents); got != "system" {
		t.Fatalf("unhealthy events account still selected: %s", got)
	}

	clock.advance(time.Hour)
	if got := mustSelect(t, p, notifx.EmailTypeEvents); got != "events" {
		t.Fatalf("events account did not recover: %s", got)
	}
}

func TestHourlyLimit(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	p := notifx.NewAccountPool([]notifx.Account{
		{Name: "system", Type: notifx.EmailTypeSystem, Email: "s@acme.org", HourlyLimit: 2},
	}, notifx.WithClock(clock.now))

	mustSelect(t, p, "")
	p.RecordSuccess("system")
	mustSelect(t, p, "")
	p.RecordSuccess("system")

	if _, err := p.Select(""); err == nil {
		t.Fatal("expected limit to block the account")
	}
	if snap := p.Snapshot(); !snap[0].AtLimit || !snap[0].Healthy {
		t.Fatalf("unexpected snapshot %+v", snap[0])
	}

	clock.advance(time.Hour)
	mustSelect(t, p, "")
}

func TestSnapshotSuccessRate(t *testing.T) {
	p := notifx.NewAccountPool(testAccounts())
	p.RecordSuccess("system")
	p.RecordSuccess("system")
	p.RecordSuccess("system")
	p.RecordFailure("system")

	snap := p.Snapshot()
	if len(snap) != 4 || snap[0].Name != "system" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap[0].SuccessRate != 0.75 || snap[0].TotalSent != 3 || snap[0].TotalFailed != 1 {
		t.Fatalf("unexpected stats %+v", snap[0])
	}
	if snap[1].SuccessRate != 1 {
		t.Fatalf("unused account should report full success rate, got %v", snap[1].SuccessRate)
	}
}
