package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/photovault/internal/domain"
	"github.com/timmy/photovault/internal/logger"
)

type missingHandlerError struct{ name domain.JobName }

func (e *missingHandlerError) Error() string { return "no handler registered for job " + string(e.name) }

// Dispatch runs the registered handler for job. Panics are recovered and
// reported as errors so the transport can decide whether to retry.
func Dispatch(ctx context.Context, reg *Registry, job domain.Job) (status domain.JobStatus, err error) {
	ctx = logger.SetJob(ctx, uuid.NewString(), string(job.Name))
	start := time.Now()

	h, ok := reg.Get(job.Name)
	if !ok {
		err = &missingHandlerError{name: job.Name}
		logger.CtxWarn(ctx, "[Worker] %v", err)
		return domain.JobStatusFailed, nil
	}

	defer func() {
		if r := recover(); r != nil {
			status = domain.JobStatusFailed
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
		entry := logger.With(nil).WithDuration(start).WithStatus(string(status))
		if err != nil {
			entry.Error(ctx, "[Worker] Job %s errored: %v", job.Name, err)
			return
		}
		entry.Debug(ctx, "[Worker] Job %s finished", job.Name)
	}()

	return h(ctx, job)
}
