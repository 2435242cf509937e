package mailqinfra_test

import (
	"context"
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqinfra"
	"github.com/Abraxas-365/mailroom/pkg/notifx"
	"github.com/Abraxas-365/mailroom/pkg/ptrx"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newRepo() (*mailqinfra.MemoryRepository, *clock) {
	c := &clock{t: time.Date(2026, 4, 5, 9, 0, 0, 0, time.UTC)}
	r := mailqinfra.NewMemoryRepository()
	r.SetClock(c.now)
	return r, c
}

func welcome(recipient string) mailq.NewMessage {
	return mailq.NewMessage{
		Recipient:         recipient,
		SubjectTemplate:   "Welcome to {{ church_name }}!",
		BodyTemplate:      "<p>Hi {{ first_name }}</p>",
		TemplateVariables: map[string]any{"church_name": "Acme", "first_name": "Ana"},
	}
}

func mustEnqueue(t *testing.T, r mailq.Repository, n mailq.NewMessage) kernel.MessageID {
	t.Helper()
	id, err := r.Enqueue(context.Background(), n)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func TestEnqueueValidation(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()

	cases := []mailq.NewMessage{
		{SubjectTemplate: "s", BodyTemplate: "b"},
		{Recipient: "nope", SubjectTemplate: "s", BodyTemplate: "b"},
		{Recipient: "a@b.org", BodyTemplate: "b"},
		{Recipient: "a@b.org", SubjectTemplate: "s"},
		{Recipient: "a@b.org", SubjectTemplate: "s", BodyTemplate: "b", Metadata: mailq.Metadata{EmailType: "spam"}},
	}
	for i, n := range cases {
		if _, err := r.Enqueue(ctx, n); !errx.IsCode(err, mailq.ErrInvalidMessage) {
			t.Fatalf("case %d: expected invalid message, got %v", i, err)
		}
	}
}

func TestEnqueueCreatesPendingMessage(t *testing.T) {
	r, c := newRepo()
	id := mustEnqueue(t, r, welcome("ana@example.com"))

	m, err := r.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != mailq.StatusPending || m.Attempts != 0 || m.ErrorMessage != nil {
		t.Fatalf("unexpected initial state %+v", m)
	}
	if !m.NextAttemptAt.Equal(c.t) || !m.CreatedAt.Equal(c.t) {
		t.Fatalf("timestamps not set to now: %+v", m)
	}
}

func TestFetchDueSkipsFutureAndOrdersOldestFirst(t *testing.T) {
	r, c := newRepo()
	ctx := context.Background()

	future := welcome("later@example.com")
	future.SendAt = ptrx.Time(c.t.Add(time.Hour))
	mustEnqueue(t, r, future)

	first := mustEnqueue(t, r, welcome("first@example.com"))
	c.t = c.t.Add(time.Minute)
	second := mustEnqueue(t, r, welcome("second@example.com"))

	due, err := r.FetchDue(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 2 || due[0].ID != first || due[1].ID != second {
		t.Fatalf("unexpected due set %v", due)
	}

	limited, _ := r.FetchDue(ctx, 1)
	if len(limited) != 1 || limited[0].ID != first {
		t.Fatalf("limit not honored: %v", limited)
	}

	c.t = c.t.Add(2 * time.Hour)
	all, _ := r.FetchDue(ctx, 10)
	if len(all) != 3 {
		t.Fatalf("scheduled message should be due now, got %d", len(all))
	}
}

func TestMarkSentAndMarkFailed(t *testing.T) {
	r, c := newRepo()
	ctx := context.Background()
	sentID := mustEnqueue(t, r, welcome("a@example.com"))
	failedID := mustEnqueue(t, r, welcome("b@example.com"))

	err := r.MarkSent(ctx, mailq.Claim{ID: sentID}, notifx.DeliveryResult{Success: true, MessageID: "p-1", Provider: "smtp", Sender: "noreply@acme.org"})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.MarkFailed(ctx, mailq.Claim{ID: failedID}, "550 rejected", c.t); err != nil {
		t.Fatal(err)
	}

	sent, _ := r.Get(ctx, sentID)
	if sent.Status != mailq.StatusSent || sent.Attempts != 1 || sent.ErrorMessage != nil || sent.SentAt == nil {
		t.Fatalf("unexpected sent state %+v", sent)
	}
	if sent.Provider != "smtp" || sent.Sender != "noreply@acme.org" || sent.ProviderMessageID != "p-1" {
		t.Fatalf("delivery result not folded in: %+v", sent)
	}

	failed, _ := r.Get(ctx, failedID)
	if failed.Status != mailq.StatusFailed || failed.Attempts != 1 || ptrx.StringValue(failed.ErrorMessage) != "550 rejected" {
		t.Fatalf("unexpected failed state %+v", failed)
	}

	if err := r.MarkSent(ctx, mailq.Claim{ID: kernel.NewMessageID()}, notifx.DeliveryResult{}); !errx.IsCode(err, mailq.ErrMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestResetFailed(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()

	var ids []kernel.MessageID
	for _, to := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		id := mustEnqueue(t, r, welcome(to))
		_ = r.MarkFailed(ctx, mailq.Claim{ID: id}, "boom", time.Now())
		ids = append(ids, id)
	}
	sent := mustEnqueue(t, r, welcome("d@example.com"))
	_ = r.MarkSent(ctx, mailq.Claim{ID: sent}, notifx.DeliveryResult{Success: true})

	n, err := r.ResetFailed(ctx)
	if err != nil || n != 3 {
		t.Fatalf("ResetFailed = %d, %v", n, err)
	}
	for _, id := range ids {
		m, _ := r.Get(ctx, id)
		if m.Status != mailq.StatusPending || m.Attempts != 0 || m.ErrorMessage != nil {
			t.Fatalf("not reset: %+v", m)
		}
	}
	if m, _ := r.Get(ctx, sent); m.Status != mailq.StatusSent {
		t.Fatalf("sent message touched by reset: %+v", m)
	}
}

func TestClaimDueIsExclusiveUntilLeaseExpires(t *testing.T) {
	r, c := newRepo()
	ctx := context.Background()
	id := mustEnqueue(t, r, welcome("a@example.com"))

	first, _ := r.ClaimDue(ctx, 10, 5*time.Minute)
	second, _ := r.ClaimDue(ctx, 10, 5*time.Minute)
	if len(first) != 1 || len(second) != 0 {
		t.Fatalf("claim not exclusive: %d then %d", len(first), len(second))
	}
	if first[0].Status != mailq.StatusInProgress || first[0].ClaimedUntil == nil {
		t.Fatalf("claimed message not in progress: %+v", first[0])
	}
	if due, _ := r.FetchDue(ctx, 10); len(due) != 0 {
		t.Fatal("claimed message must not be fetched")
	}

	c.t = c.t.Add(6 * time.Minute)
	again, _ := r.ClaimDue(ctx, 10, 5*time.Minute)
	if len(again) != 1 || again[0].ID != id {
		t.Fatalf("expired lease not reclaimed: %v", again)
	}
}

func TestReleaseReturnsToPending(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	id := mustEnqueue(t, r, welcome("a@example.com"))

	claimed, _ := r.ClaimDue(ctx, 1, time.Minute)
	if err := r.Release(ctx, []mailq.Claim{claimed[0].Claim()}); err != nil {
		t.Fatal(err)
	}
	m, _ := r.Get(ctx, id)
	if m.Status != mailq.StatusPending || m.ClaimedUntil != nil || m.Attempts != 0 {
		t.Fatalf("unexpected released state %+v", m)
	}
}

func TestStaleClaimCannotWrite(t *testing.T) {
	r, c := newRepo()
	ctx := context.Background()
	id := mustEnqueue(t, r, welcome("a@example.com"))

	first, _ := r.ClaimDue(ctx, 1, time.Minute)
	c.t = c.t.Add(2 * time.Minute)
	second, _ := r.ClaimDue(ctx, 1, time.Minute)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected the expired lease to be reclaimed: %d then %d", len(first), len(second))
	}
	stale, current := first[0].Claim(), second[0].Claim()

	if err := r.MarkSent(ctx, stale, notifx.DeliveryResult{Success: true}); !errx.IsCode(err, mailq.ErrClaimLost) {
		t.Fatalf("MarkSent: expected claim lost, got %v", err)
	}
	if err := r.Requeue(ctx, stale, "timeout", c.t); !errx.IsCode(err, mailq.ErrClaimLost) {
		t.Fatalf("Requeue: expected claim lost, got %v", err)
	}
	if err := r.Release(ctx, []mailq.Claim{stale}); err != nil {
		t.Fatal(err)
	}
	if m, _ := r.Get(ctx, id); m.Status != mailq.StatusInProgress || m.Attempts != 0 {
		t.Fatalf("stale writes changed the message: %+v", m)
	}

	if err := r.MarkSent(ctx, current, notifx.DeliveryResult{Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.MarkFailed(ctx, current, "late", c.t); !errx.IsCode(err, mailq.ErrClaimLost) {
		t.Fatalf("second write under a spent claim: got %v", err)
	}
	if m, _ := r.Get(ctx, id); m.Status != mailq.StatusSent || m.Attempts != 1 {
		t.Fatalf("expected a single recorded attempt, got %s/%d", m.Status, m.Attempts)
	}
}

func TestUnclaimedWriteNeedsPending(t *testing.T) {
	r, _ := newRepo()
	ctx := context.Background()
	id := mustEnqueue(t, r, welcome("a@example.com"))

	if err := r.MarkSent(ctx, mailq.Claim{ID: id}, notifx.DeliveryResult{Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.MarkSent(ctx, mailq.Claim{ID: id}, notifx.DeliveryResult{Success: true}); !errx.IsCode(err, mailq.ErrClaimLost) {
		t.Fatalf("expected claim lost on a sent message, got %v", err)
	}
	if err := r.Requeue(ctx, mailq.Claim{ID: "not-a-uuid"}, "x", time.Now()); !errx.IsCode(err, mailq.ErrMessageNotFound) {
		t.Fatalf("expected not found for a malformed id, got %v", err)
	}
	if m, _ := r.Get(ctx, id); m.Attempts != 1 {
		t.Fatalf("attempts double counted: %d", m.Attempts)
	}
}

func TestListAndStats(t *testing.T) {
	r, c := newRepo()
	ctx := context.Background()

	a := mustEnqueue(t, r, welcome("a@example.com"))
	c.t = c.t.Add(time.Second)
	mustEnqueue(t, r, welcome("b@example.com"))
	c.t = c.t.Add(time.Second)
	mustEnqueue(t, r, welcome("c@example.com"))
	_ = r.MarkFailed(ctx, mailq.Claim{ID: a}, "boom", c.t)

	page, err := r.List(ctx, mailq.ListFilter{Status: mailq.StatusPending}, kernel.PaginationOptions{Page: 1, PageSize: 1})
	if err != nil {
		t.Fatal(err)
	}
	if page.Page.Total != 2 || len(page.Items) != 1 || page.Items[0].Recipient != "c@example.com" || !page.HasNext() {
		t.Fatalf("unexpected page %+v", page)
	}

	stats, _ := r.Stats(ctx)
	if stats.Pending != 2 || stats.Failed != 1 || stats.OldestPendingAt == nil {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if age := stats.OldestPendingAge(c.t); age != time.Second {
		t.Fatalf("unexpected oldest pending age %v", age)
	}
}
