package processing

import (
	"context"
	"time"
)

// Stage is one cosmetic step of the fake analysis animation.
type Stage struct {
	Text     string
	Duration time.Duration
}

// Progress is reported when a stage starts. Percent is the value the progress
// bar reaches once the stage finishes.
type Progress struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
}

// AnalysisStages are shown while a verdict is being "computed".
var AnalysisStages = []Stage{
	{"Calibrating gill sensors...", 700 * time.Millisecond},
	{"Reading tail flutter frequency...", 800 * time.Millisecond},
	{"Checking surrounding ripples...", 700 * time.Millisecond},
	{"Searching for nets / birds / humans...", 900 * time.Millisecond},
	{"Applying fish psychology heuristics...", 700 * time.Millisecond},
	{"Finalizing analysis...", 700 * time.Millisecond},
}

// ExportStages are shown while a certificate is prepared.
var ExportStages = []Stage{
	{"Preparing PDF report...", 650 * time.Millisecond},
	{"Encrypting scales... (joking)", 900 * time.Millisecond},
	{"Finalizing file - ready!", 500 * time.Millisecond},
}

// Animate walks stages in order, calling report at the start of each and
// sleeping Duration*scale. A scale of zero skips the delays. It returns the
// context error if cancelled part way.
func Animate(ctx context.Context, stages []Stage, scale float64, report func(Progress)) error {
	n := len(stages)
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if report != nil {
			report(Progress{Stage: stage.Text, Percent: (i + 1) * 100 / n})
		}
		if err := sleep(ctx, time.Duration(float64(stage.Duration)*scale)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
