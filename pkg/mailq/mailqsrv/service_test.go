package mailqsrv_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/Abraxas-365/mailroom/pkg/jobx/jobxmem"
	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqinfra"
	"github.com/Abraxas-365/mailroom/pkg/mailq/mailqsrv"
)

func newService(jobs mailqsrv.JobQueue, sender *stubSender) (*mailqsrv.QueueService, *mailqinfra.MemoryRepository) {
	repo := mailqinfra.NewMemoryRepository()
	p := mailqsrv.NewProcessor(repo, sender, queueConfig())
	return mailqsrv.NewQueueService(repo, p, jobs, ""), repo
}

func TestEnqueueValidates(t *testing.T) {
	svc, _ := newService(nil, &stubSender{})
	ctx := context.Background()

	bad := welcome("not-an-address")
	if _, err := svc.Enqueue(ctx, bad); !errx.IsCode(err, mailq.ErrInvalidMessage) {
		t.Fatalf("expected invalid message, got %v", err)
	}

	id, err := svc.Enqueue(ctx, welcome("ana@acme.org"))
	if err != nil {
		t.Fatal(err)
	}
	msg, err := svc.Get(ctx, id)
	if err != nil || msg.Status != mailq.StatusPending || msg.Attempts != 0 {
		t.Fatalf("unexpected message %+v (%v)", msg, err)
	}
}

func TestGetUnknown(t *testing.T) {
	svc, _ := newService(nil, &stubSender{})

	for _, id := range []kernel.MessageID{"nope", kernel.NewMessageID()} {
		if _, err := svc.Get(context.Background(), id); !errx.IsCode(err, mailq.ErrMessageNotFound) {
			t.Fatalf("%s: expected not found, got %v", id, err)
		}
	}
}

func TestResetFailedAfterBatch(t *testing.T) {
	svc, _ := newService(nil, &stubSender{fail: alwaysFail})
	ctx := context.Background()
	for _, r := range []string{"a@acme.org", "b@acme.org", "c@acme.org"} {
		if _, err := svc.Enqueue(ctx, welcome(r)); err != nil {
			t.Fatal(err)
		}
	}

	if res, _ := svc.ProcessBatch(ctx, 0); res.Failed != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	n, err := svc.ResetFailed(ctx)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 reset, got %d (%v)", n, err)
	}

	page, err := svc.List(ctx, mailq.ListFilter{Status: mailq.StatusPending}, kernel.PaginationOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if page.Page.Total != 3 {
		t.Fatalf("expected 3 pending, got %d", page.Page.Total)
	}
	for _, m := range page.Items {
		if m.Attempts != 0 || m.ErrorMessage != nil {
			t.Fatalf("reset message not clean: %+v", m)
		}
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, _ := newService(nil, &stubSender{})
	_, err := svc.List(context.Background(), mailq.ListFilter{Status: "bounced"}, kernel.PaginationOptions{})
	if !errx.IsCode(err, mailq.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestAsyncDisabledWithoutJobQueue(t *testing.T) {
	svc, _ := newService(nil, &stubSender{})

	if _, err := svc.EnqueueProcessJob(context.Background(), 10); !errx.IsCode(err, mailq.ErrAsyncDisabled) {
		t.Fatalf("expected async disabled, got %v", err)
	}
	if _, err := svc.JobStatus(context.Background(), "x"); !errx.IsCode(err, mailq.ErrAsyncDisabled) {
		t.Fatalf("expected async disabled, got %v", err)
	}
}

func TestProcessJobRoundTrip(t *testing.T) {
	client := jobx.NewClient(jobxmem.NewMemoryQueue(), jobx.WithQueues("mail"))
	svc, _ := newService(client, &stubSender{})
	ctx := context.Background()

	if _, err := svc.Enqueue(ctx, welcome("ana@acme.org")); err != nil {
		t.Fatal(err)
	}

	jobID, err := svc.EnqueueProcessJob(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	info, err := svc.JobStatus(ctx, jobID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Type != svc.JobType() || info.Status != jobx.JobStatusPending || info.Queue != "mail" {
		t.Fatalf("unexpected job %+v", info)
	}

	var payload mailqsrv.ProcessJobPayload
	if err := info.DecodePayload(&payload); err != nil || payload.BatchSize != 5 {
		t.Fatalf("unexpected payload %s", info.Payload)
	}

	out, err := svc.HandleProcessJob(ctx, info)
	if err != nil {
		t.Fatal(err)
	}
	var res mailq.BatchResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatal(err)
	}
	if res != (mailq.BatchResult{Processed: 1, Successful: 1}) {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := svc.JobStatus(ctx, "missing"); !errx.IsCode(err, mailq.ErrJobNotFound) {
		t.Fatalf("expected job not found, got %v", err)
	}
}
