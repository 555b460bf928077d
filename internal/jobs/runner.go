package jobs

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

const defaultJobSchedule = "@every 1s"

type Job interface {
	ID() string
	Run()
}

type CronJob interface {
	Schedule() string
	Job
}

// TaskExecutor runs jobs on a cron. A job whose previous run is still in
// progress is skipped rather than run concurrently with itself.
type TaskExecutor struct {
	cron     *cron.Cron
	jobs     []Job
	cronJobs []CronJob
	running  mapset.Set[string]
	mu       sync.Mutex
}

func NewTaskExecutor(jobs []Job, cronJobs []CronJob) *TaskExecutor {
	return &TaskExecutor{
		cron:     cron.New(),
		jobs:     jobs,
		cronJobs: cronJobs,
		running:  mapset.NewThreadUnsafeSet[string](),
	}
}

// Run registers the jobs and starts the cron. Each job runs in its own
// goroutine inside the cron.
func (t *TaskExecutor) Run() error {
	for _, job := range t.cronJobs {
		job := job
		if err := t.cron.AddFunc(job.Schedule(), func() { t.runExclusive(job) }); err != nil {
			logrus.Errorf("failed to add task %s to cron: %v", job.ID(), err)
			return err
		}
	}

	for _, job := range t.jobs {
		job := job
		if err := t.cron.AddFunc(defaultJobSchedule, func() { t.runExclusive(job) }); err != nil {
			return err
		}
	}

	t.cron.Start()
	return nil
}

// RunNow runs a job immediately unless it is already running.
func (t *TaskExecutor) RunNow(job Job) bool {
	return t.runExclusive(job)
}

func (t *TaskExecutor) runExclusive(job Job) bool {
	t.mu.Lock()
	if !t.running.Add(job.ID()) {
		t.mu.Unlock()
		logrus.Warnf("task %s is already running", job.ID())
		return false
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.running.Remove(job.ID())
	}()

	job.Run()
	return true
}

func (t *TaskExecutor) Stop() {
	logrus.Infof("stopping all tasks")
	t.cron.Stop()
}
