// Package processing runs the fake analysis in the background. A single
// worker goroutine consumes a buffered channel so files are handled one at a
// time, in submission order.
package processing

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/pondvision/internal/model"
	"github.com/dharsanguruparan/pondvision/internal/storage"
	"github.com/dharsanguruparan/pondvision/internal/verdict"
)

// ErrQueueFull is returned by Submit when the worker is saturated.
var ErrQueueFull = errors.New("analysis queue full")

// Job is one accepted upload waiting for analysis.
type Job struct {
	UploadID string
	Media    verdict.Media
}

// Options tunes the Processor.
type Options struct {
	// QueueSize bounds pending jobs; values below one become one.
	QueueSize int
	// StageScale multiplies the cosmetic stage delays.
	StageScale float64
}

// Processor consumes Jobs, drives the progress stages and publishes each
// verdict into the slot.
type Processor struct {
	store *storage.MemoryStore
	slot  *storage.VerdictSlot
	gen   *verdict.Generator
	queue chan Job
	scale float64
}

// New builds a Processor.
func New(store *storage.MemoryStore, slot *storage.VerdictSlot, gen *verdict.Generator, opts Options) *Processor {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1
	}
	if opts.StageScale < 0 {
		opts.StageScale = 0
	}
	return &Processor{
		store: store,
		slot:  slot,
		gen:   gen,
		queue: make(chan Job, opts.QueueSize),
		scale: opts.StageScale,
	}
}

// Submit queues a job without blocking. When the buffer is full the upload is
// marked failed and ErrQueueFull returned.
func (p *Processor) Submit(job Job) error {
	select {
	case p.queue <- job:
		return nil
	default:
		logrus.WithField("upload", job.UploadID).Warn("analysis queue full, dropping job")
		_ = p.store.UpdateStatus(job.UploadID, model.StatusFailed, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Run processes jobs until ctx is cancelled. Jobs still queued at that point
// are marked failed. It always returns nil so it can sit in an errgroup next
// to the HTTP server.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return nil
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Processor) drain() {
	for {
		select {
		case job := <-p.queue:
			logrus.WithField("upload", job.UploadID).Info("analysis cancelled before start")
			_ = p.store.UpdateStatus(job.UploadID, model.StatusFailed, "analysis cancelled")
		default:
			return
		}
	}
}

func (p *Processor) process(ctx context.Context, job Job) {
	log := logrus.WithFields(logrus.Fields{"upload": job.UploadID, "file": job.Media.FileName})
	report := func(pr Progress) {
		if err := p.store.UpdateProgress(job.UploadID, pr.Stage, pr.Percent); err != nil {
			log.WithError(err).Debug("progress update skipped")
		}
	}
	v, err := Analyze(ctx, p.gen, job.Media, AnalysisStages, p.scale, report)
	if err != nil {
		log.WithError(err).Warn("analysis aborted")
		_ = p.store.UpdateStatus(job.UploadID, model.StatusFailed, "analysis aborted")
		return
	}
	p.slot.Store(v)
	if err := p.store.Complete(job.UploadID, v.ID); err != nil {
		log.WithError(err).Warn("complete upload")
	}
	log.WithFields(logrus.Fields{
		"verdict":  v.ID,
		"category": v.AgeCategory.String(),
		"dead":     v.Dead,
	}).Info("analysis complete")
}

// Analyze animates stages and then generates exactly one verdict. Cancellation
// during the animation returns the context error and draws nothing.
func Analyze(ctx context.Context, gen *verdict.Generator, media verdict.Media, stages []Stage, scale float64, report func(Progress)) (verdict.Verdict, error) {
	if err := Animate(ctx, stages, scale, report); err != nil {
		return verdict.Verdict{}, err
	}
	return gen.Generate(media.FileName, media), nil
}
