package jobs

import "time"

// Observer receives lifecycle events. Calls happen on submitter and worker
// goroutines and must not block.
type Observer interface {
	JobSubmitted(job Job)
	JobRejected(err error)
	JobStarted(job Job)
	JobFinished(job Job, elapsed time.Duration)
}

// Observers fans events out in order.
type Observers []Observer

func (o Observers) JobSubmitted(job Job) {
	for _, observer := range o {
		observer.JobSubmitted(job)
	}
}

func (o Observers) JobRejected(err error) {
	for _, observer := range o {
		observer.JobRejected(err)
	}
}

func (o Observers) JobStarted(job Job) {
	for _, observer := range o {
		observer.JobStarted(job)
	}
}

func (o Observers) JobFinished(job Job, elapsed time.Duration) {
	for _, observer := range o {
		observer.JobFinished(job, elapsed)
	}
}
