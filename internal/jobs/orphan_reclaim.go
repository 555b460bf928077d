package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/emrgen/catalog/internal/service"
	"github.com/sirupsen/logrus"
)

// Reclaimer deletes unreferenced versions.
type Reclaimer interface {
	ReclaimOrphans(ctx context.Context) (*service.ReclaimResult, error)
}

var _ CronJob = (*OrphanReclaimTask)(nil)

// OrphanReclaimTask reclaims orphaned product and content versions on a
// schedule.
type OrphanReclaimTask struct {
	reclaimer Reclaimer
	schedule  string
	timeout   time.Duration

	mu   sync.Mutex
	last *service.ReclaimResult
}

func NewOrphanReclaimTask(schedule string, timeout time.Duration, reclaimer Reclaimer) *OrphanReclaimTask {
	return &OrphanReclaimTask{
		reclaimer: reclaimer,
		schedule:  schedule,
		timeout:   timeout,
	}
}

func (o *OrphanReclaimTask) ID() string {
	return "orphan_reclaim"
}

func (o *OrphanReclaimTask) Schedule() string {
	return o.schedule
}

// Last returns the result of the last successful run.
func (o *OrphanReclaimTask) Last() *service.ReclaimResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

func (o *OrphanReclaimTask) Run() {
	ctx := context.Background()
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := o.reclaimer.ReclaimOrphans(ctx)
	if err != nil {
		logrus.Errorf("orphan reclaim failed: %v", err)
		return
	}
	o.mu.Lock()
	o.last = result
	o.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"products": len(result.Products),
		"content":  len(result.Content),
		"spared":   result.Spared,
		"took":     time.Since(start),
	}).Info("orphan reclaim finished")
}
