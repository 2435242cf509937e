package mailqsrv

import (
	"context"
	"encoding/json"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/jobx"
	"github.com/Abraxas-365/mailroom/pkg/kernel"
	"github.com/Abraxas-365/mailroom/pkg/logx"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
)

// JobQueue is the slice of the job client the service needs.
type JobQueue interface {
	Enqueue(ctx context.Context, job jobx.Job) (string, error)
	GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error)
}

// ProcessJobPayload is the payload of a processing trigger job.
type ProcessJobPayload struct {
	BatchSize int `json:"batch_size,omitempty"`
}

// QueueService is the operator-facing side of the queue.
type QueueService struct {
	repo      mailq.Repository
	processor *Processor
	jobs      JobQueue
	jobType   string
}

// NewQueueService wires the service. jobs may be nil, which disables
// asynchronous processing.
func NewQueueService(repo mailq.Repository, processor *Processor, jobs JobQueue, jobType string) *QueueService {
	if jobType == "" {
		jobType = "mailq.process_batch"
	}
	return &QueueService{repo: repo, processor: processor, jobs: jobs, jobType: jobType}
}

// JobType is the job type HandleProcessJob must be registered under.
func (s *QueueService) JobType() string { return s.jobType }

func (s *QueueService) Enqueue(ctx context.Context, msg mailq.NewMessage) (kernel.MessageID, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}
	id, err := s.repo.Enqueue(ctx, msg)
	if err != nil {
		return "", storeErr("enqueue", err)
	}
	logx.WithFields(logx.Fields{
		"message_id": id.String(),
		"recipient":  msg.Recipient,
		"tag":        msg.Metadata.Tag,
	}).Debug("mailq: message enqueued")
	return id, nil
}

// ProcessBatch runs one cycle synchronously.
func (s *QueueService) ProcessBatch(ctx context.Context, batchSize int) (mailq.BatchResult, error) {
	return s.processor.ProcessBatch(ctx, batchSize)
}

// ResetFailed moves every failed message back to pending.
func (s *QueueService) ResetFailed(ctx context.Context) (int, error) {
	n, err := s.repo.ResetFailed(ctx)
	if err != nil {
		return 0, storeErr("reset_failed", err)
	}
	logx.Infof("mailq: reset %d failed messages", n)
	return n, nil
}

func (s *QueueService) Get(ctx context.Context, id kernel.MessageID) (*mailq.Message, error) {
	if !id.Valid() {
		return nil, mailq.NotFound(id.String())
	}
	msg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get", err)
	}
	return msg, nil
}

func (s *QueueService) List(ctx context.Context, filter mailq.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*mailq.Message], error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return kernel.Paginated[*mailq.Message]{}, mailq.InvalidStatus(string(filter.Status))
	}
	page, err := s.repo.List(ctx, filter, opts.Normalize())
	if err != nil {
		return kernel.Paginated[*mailq.Message]{}, storeErr("list", err)
	}
	return page, nil
}

func (s *QueueService) Stats(ctx context.Context) (mailq.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return mailq.Stats{}, storeErr("stats", err)
	}
	return stats, nil
}

// EnqueueProcessJob schedules a processing cycle on the job queue and
// returns the job id.
func (s *QueueService) EnqueueProcessJob(ctx context.Context, batchSize int) (string, error) {
	if s.jobs == nil {
		return "", mailq.AsyncDisabled()
	}
	job, err := jobx.NewJob(s.jobType, "", ProcessJobPayload{BatchSize: batchSize})
	if err != nil {
		return "", err
	}
	job.MaxRetries = 1
	return s.jobs.Enqueue(ctx, job)
}

// JobStatus returns the processing job with its BatchResult once complete.
func (s *QueueService) JobStatus(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	if s.jobs == nil {
		return nil, mailq.AsyncDisabled()
	}
	info, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errx.IsCode(err, jobx.ErrJobNotFound) {
			return nil, mailq.JobNotFound(jobID, err)
		}
		return nil, err
	}
	if info.Type != s.jobType {
		return nil, mailq.JobNotFound(jobID, nil)
	}
	return info, nil
}

// HandleProcessJob is the jobx handler for processing triggers. Only a
// fetch failure fails the job.
func (s *QueueService) HandleProcessJob(ctx context.Context, job *jobx.JobInfo) ([]byte, error) {
	var payload ProcessJobPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	result, err := s.processor.ProcessBatch(ctx, payload.BatchSize)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

// storeErr keeps errx errors from the repository (not found, validation)
// and wraps anything else.
func storeErr(op string, err error) error {
	if _, ok := errx.As(err); ok {
		return err
	}
	return mailq.StoreFailed(op, err)
}
