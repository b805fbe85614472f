package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/scene2video/internal/config"
	"github.com/ivlev/scene2video/internal/engine"
	"github.com/ivlev/scene2video/internal/timeline"
	"github.com/ivlev/scene2video/internal/video"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job already finished")
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Finished reports whether the job reached a terminal state.
func (s State) Finished() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Job is a snapshot of a render job.
type Job struct {
	ID         string          `json:"jobId"`
	State      State           `json:"state"`
	Progress   engine.Progress `json:"progress"`
	Output     string          `json:"output"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// RunFunc renders vc into output, reporting progress as it goes.
type RunFunc func(ctx context.Context, vc *timeline.VideoConfig, output string, progress func(engine.Progress)) error

// EngineRunner renders through the scene engine with the given encoder.
func EngineRunner(cfg *config.Config, enc video.VideoEncoder, log *slog.Logger) RunFunc {
	return func(ctx context.Context, vc *timeline.VideoConfig, output string, progress func(engine.Progress)) error {
		p := engine.NewVideoProject(cfg, vc, enc, log)
		p.Output = output
		p.OnProgress = progress
		_, err := p.Run(ctx)
		return err
	}
}

type record struct {
	Job
	cancel context.CancelFunc
}

// JobManager runs render jobs in the background, at most a fixed number at
// a time. Jobs beyond the limit wait in the queued state.
type JobManager struct {
	// OutputDir receives every rendered file.
	OutputDir string

	mu    sync.RWMutex
	jobs  map[string]*record
	slots chan struct{}
	wg    sync.WaitGroup
	run   RunFunc
	log   *slog.Logger
}

func NewJobManager(outputDir string, maxJobs int, run RunFunc, log *slog.Logger) *JobManager {
	if log == nil {
		log = slog.Default()
	}
	return &JobManager{
		OutputDir: outputDir,
		jobs:      make(map[string]*record),
		slots:     make(chan struct{}, max(maxJobs, 1)),
		run:       run,
		log:       log,
	}
}

// Submit queues vc for rendering into the file name inside OutputDir. An
// empty name is derived from the job ID. The config must already be
// validated.
func (m *JobManager) Submit(vc *timeline.VideoConfig, name string) Job {
	id := uuid.NewString()
	if name == "" {
		name = fmt.Sprintf("video_%s.mp4", id)
	}
	output := filepath.Join(m.OutputDir, name)

	ctx, cancel := context.WithCancel(context.Background())
	rec := &record{
		Job: Job{
			ID:        id,
			State:     StateQueued,
			Output:    output,
			CreatedAt: time.Now(),
		},
		cancel: cancel,
	}

	m.mu.Lock()
	m.jobs[rec.ID] = rec
	snapshot := rec.Job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.execute(ctx, rec.ID, vc, output)
	return snapshot
}

func (m *JobManager) execute(ctx context.Context, id string, vc *timeline.VideoConfig, output string) {
	defer m.wg.Done()

	select {
	case m.slots <- struct{}{}:
		defer func() { <-m.slots }()
	case <-ctx.Done():
		m.finish(id, ctx.Err())
		return
	}

	m.update(id, func(j *Job) { j.State = StateRunning })
	m.log.Info("[*] Задача запущена", "job", id, "output", output)

	err := m.run(ctx, vc, output, func(p engine.Progress) {
		m.update(id, func(j *Job) { j.Progress = p })
	})
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	m.finish(id, err)
}

func (m *JobManager) finish(id string, err error) {
	m.update(id, func(j *Job) {
		now := time.Now()
		j.FinishedAt = &now
		switch {
		case err == nil:
			j.State = StateDone
		case errors.Is(err, context.Canceled):
			j.State = StateCancelled
			j.Error = err.Error()
		default:
			j.State = StateFailed
			j.Error = err.Error()
		}
	})

	m.mu.RLock()
	rec := m.jobs[id]
	m.mu.RUnlock()
	rec.cancel()

	if err != nil {
		m.log.Warn("[!] Задача остановлена", "job", id, "err", err)
	} else {
		m.log.Info("[+++] Задача выполнена", "job", id)
	}
}

func (m *JobManager) update(id string, fn func(*Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.jobs[id]; ok {
		fn(&rec.Job)
	}
}

// Get returns a snapshot of the job.
func (m *JobManager) Get(id string) (Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return rec.Job, nil
}

// Cancel stops a queued or running job. The job reaches the cancelled state
// once its renderer returns.
func (m *JobManager) Cancel(id string) (Job, error) {
	m.mu.RLock()
	rec, ok := m.jobs[id]
	var snapshot Job
	if ok {
		snapshot = rec.Job
	}
	m.mu.RUnlock()

	if !ok {
		return Job{}, ErrJobNotFound
	}
	if snapshot.State.Finished() {
		return snapshot, ErrJobFinished
	}
	rec.cancel()
	return snapshot, nil
}

// Wait blocks until every submitted job has finished.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels all jobs and waits for them.
func (m *JobManager) Shutdown() {
	m.mu.RLock()
	for _, rec := range m.jobs {
		rec.cancel()
	}
	m.mu.RUnlock()
	m.Wait()
}
