package jobx_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/Abraxas-365/mailroom/pkg/jobx/jobxmem"
)

func waitFor(t *testing.T, c *jobx.Client, id string, want jobx.JobStatus) *jobx.JobInfo {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		info, err := c.GetJob(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Status == want {
			return info
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s", id, want)
	return nil
}

func startClient(t *testing.T, c *jobx.Client) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = c.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestJobCompletesWithResult(t *testing.T) {
	c := jobx.NewClient(jobxmem.NewMemoryQueue(),
		jobx.WithQueues("mail"),
		jobx.WithPollInterval(10*time.Millisecond),
		jobx.WithDequeueTimeout(20*time.Millisecond),
	)
	c.Register("echo", func(_ context.Context, job *jobx.JobInfo) ([]byte, error) {
		var in struct {
			N int `json:"n"`
		}
		if err := job.DecodePayload(&in); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]int{"doubled": in.N * 2})
	})
	startClient(t, c)

	job, err := jobx.NewJob("echo", "", map[string]int{"n": 21})
	if err != nil {
		t.Fatal(err)
	}
	id, err := c.Enqueue(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}

	info := waitFor(t, c, id, jobx.JobStatusCompleted)
	if info.Queue != "mail" || info.Attempts != 1 {
		t.Fatalf("unexpected job %+v", info)
	}
	if string(info.Result) != `{"doubled":42}` {
		t.Fatalf("unexpected result %s", info.Result)
	}
}

func TestFailingJobIsRetriedThenFailed(t *testing.T) {
	c := jobx.NewClient(jobxmem.NewMemoryQueue(),
		jobx.WithQueues("mail"),
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithDequeueTimeout(10*time.Millisecond),
		jobx.WithDefaultRetryDelay(0),
	)
	calls := make(chan struct{}, 10)
	c.Register("boom", func(context.Context, *jobx.JobInfo) ([]byte, error) {
		calls <- struct{}{}
		return nil, errors.New("smtp down")
	})
	startClient(t, c)

	id, err := c.Enqueue(context.Background(), jobx.Job{Type: "boom", MaxRetries: 2})
	if err != nil {
		t.Fatal(err)
	}

	info := waitFor(t, c, id, jobx.JobStatusFailed)
	if info.Attempts != 2 || info.Error != "smtp down" {
		t.Fatalf("unexpected job %+v", info)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 handler calls, got %d", len(calls))
	}
}

func TestPanickingHandlerFailsJob(t *testing.T) {
	c := jobx.NewClient(jobxmem.NewMemoryQueue(),
		jobx.WithDequeueTimeout(10*time.Millisecond),
	)
	c.Register("panic", func(context.Context, *jobx.JobInfo) ([]byte, error) {
		panic("nil template")
	})
	startClient(t, c)

	id, _ := c.Enqueue(context.Background(), jobx.Job{Type: "panic", MaxRetries: 1})
	info := waitFor(t, c, id, jobx.JobStatusFailed)
	if info.Error != "handler panic: nil template" {
		t.Fatalf("unexpected error %q", info.Error)
	}
}

func TestEnqueueValidation(t *testing.T) {
	c := jobx.NewClient(jobxmem.NewMemoryQueue())

	if _, err := c.Enqueue(context.Background(), jobx.Job{}); !errx.IsCode(err, jobx.ErrInvalidJob) {
		t.Fatalf("expected invalid job, got %v", err)
	}
	if _, err := c.GetJob(context.Background(), "missing"); !errx.IsCode(err, jobx.ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStartTwice(t *testing.T) {
	c := jobx.NewClient(jobxmem.NewMemoryQueue(), jobx.WithDequeueTimeout(10*time.Millisecond))
	startClient(t, c)
	time.Sleep(20 * time.Millisecond)

	if err := c.Start(context.Background()); !errx.IsCode(err, jobx.ErrAlreadyRunning) {
		t.Fatalf("expected already running, got %v", err)
	}
}
