package ddd

import (
	"context"
	"sync"
	"time"
)

// Job is a background worker with a start/stop lifecycle.
type Job interface {
	// OnStart begins running the job
	OnStart() error
	// OnDestroy stops the job and waits for the current run to finish
	OnDestroy() error
	// IsRunning returns true if the job is currently running
	IsRunning() bool
}

// Converger is what a convergence job drives.
type Converger interface {
	ConvergeUninitialized(ctx context.Context, maxIterations int) (bool, error)
}

// ConvergenceJobConfig contains configuration for the convergence job
type ConvergenceJobConfig struct {
	// Interval between two convergence runs
	Interval time.Duration `json:"convergenceInterval" env:"CONVERGENCE_INTERVAL"`
	// MaxIterations bounds the attempts of a single run
	MaxIterations int `json:"convergenceMaxIterations" env:"CONVERGENCE_MAX_ITERATIONS"`
}

func DefaultConvergenceJobConfig() ConvergenceJobConfig {
	return ConvergenceJobConfig{Interval: time.Minute, MaxIterations: 5}
}

type convergenceJob struct {
	log       *Logger
	converger Converger
	config    ConvergenceJobConfig
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

// NewConvergenceJob runs converger on every interval tick until destroyed.
func NewConvergenceJob(name string, config ConvergenceJobConfig, converger Converger) Job {
	defaults := DefaultConvergenceJobConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = defaults.MaxIterations
	}
	return &convergenceJob{
		log:       NewLogger().Named(name),
		converger: converger,
		config:    config,
	}
}

func (j *convergenceJob) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

func (j *convergenceJob) OnStart() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	j.running = true

	j.wg.Add(1)
	go j.loop(ctx)

	j.log.Info("Convergence job started, every %s", j.config.Interval)
	return nil
}

func (j *convergenceJob) OnDestroy() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return nil
	}

	j.cancel()
	j.running = false

	done := make(chan struct{})
	go func() {
		j.wg.Wait()
		close(done)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-done:
		j.log.Info("Convergence job stopped")
		return nil
	case <-ctx.Done():
		j.log.Warn("Timeout waiting for convergence job to stop")
		return ctx.Err()
	}
}

func (j *convergenceJob) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.run(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (j *convergenceJob) run(ctx context.Context) {
	converged, err := j.converger.ConvergeUninitialized(ctx, j.config.MaxIterations)
	switch {
	case err != nil && ctx.Err() != nil:
		return
	case err != nil:
		j.log.Error("Convergence run failed: %v", err)
	case !converged:
		j.log.Warn("Convergence run ended with uninitialized projections left")
	default:
		j.log.Debug("Convergence run done")
	}
}
