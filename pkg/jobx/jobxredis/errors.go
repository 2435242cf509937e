package jobxredis

import "github.com/Abraxas-365/mailroom/pkg/errx"

var redisErrors = errx.NewRegistry("JOBX_REDIS")

var (
	ErrEnqueue   = redisErrors.Register("ENQUEUE", errx.TypeUnavailable, 0, "Redis enqueue failed")
	ErrDequeue   = redisErrors.Register("DEQUEUE", errx.TypeUnavailable, 0, "Redis dequeue failed")
	ErrGetJob    = redisErrors.Register("GET_JOB", errx.TypeUnavailable, 0, "Redis get job failed")
	ErrUpdate    = redisErrors.Register("UPDATE", errx.TypeUnavailable, 0, "Redis job update failed")
	ErrPromote   = redisErrors.Register("PROMOTE", errx.TypeUnavailable, 0, "Redis promote failed")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 0, "Failed to marshal job data")
	ErrUnmarshal = redisErrors.Register("UNMARSHAL", errx.TypeInternal, 0, "Failed to unmarshal job data")
)
