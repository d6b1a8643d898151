package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lei/pipehost/internal/command"
	"github.com/lei/pipehost/internal/pipeline"
	"github.com/lei/pipehost/internal/progress"
	"github.com/lei/pipehost/internal/results"
	"github.com/lei/pipehost/internal/runlog"
)

// demoPipeline is a small end-to-end exercise of the runner: tracked steps,
// a shell command with streamed output, and a packaged result file.
type demoPipeline struct {
	pipeline.Base
}

func newDemoPipeline() *demoPipeline {
	return &demoPipeline{}
}

func (p *demoPipeline) Meta() pipeline.Meta {
	return pipeline.Meta{
		Name:     "demo",
		Title:    "Demo Pipeline",
		Subtitle: "Exercises steps, subprocess streaming, and result bundling",
	}
}

func (p *demoPipeline) Steps() []string {
	return []string{"Collect Environment", "Run Probe", "Write Report"}
}

func (p *demoPipeline) Run(ctx context.Context, params pipeline.Params, log *runlog.Logger) error {
	tracker := p.Progress()
	workDir := params.String("work_dir", ".")
	name := params.String("report_name", "demo")

	log.Stage("Environment")
	var hostname string
	if err := tracker.Run("Collect Environment", func(s *progress.Step) error {
		h, err := os.Hostname()
		if err != nil {
			return err
		}
		hostname = h
		log.Infof("Host: %s", hostname)
		s.SetMessage("environment collected")
		return nil
	}); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	log.Stage("Probe")
	if err := tracker.Run("Run Probe", func(s *progress.Step) error {
		code := p.RunCommand(ctx, command.Spec{Shell: "uname -a"}, log)
		if code != 0 {
			return fmt.Errorf("probe exited with code %d", code)
		}
		s.SetMessage("probe complete")
		return nil
	}); err != nil {
		return err
	}

	log.Stage("Report")
	return tracker.Run("Write Report", func(s *progress.Step) error {
		path := filepath.Join(workDir, name+"_report.txt")
		content := fmt.Sprintf("pipehost demo report\nhost: %s\ngenerated: %s\n",
			hostname, time.Now().Format(time.RFC3339))
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return err
		}
		log.Success("Report written: " + path)
		s.SetMessage("report written")
		return nil
	})
}

func (p *demoPipeline) ResultBundle(params pipeline.Params) *results.Bundle {
	workDir := params.String("work_dir", ".")
	name := params.String("report_name", "demo")
	return results.NewBundle(name, workDir).
		AddFile(name+"_report.txt", "Demo report", "output")
}

func (p *demoPipeline) Actions() map[string]pipeline.ActionFunc {
	return map[string]pipeline.ActionFunc{
		"about": func(ctx context.Context, log *runlog.Logger) error {
			log.Info("pipehost demo pipeline")
			log.Indent("collects the environment, runs a probe command, packages a report", 1)
			return nil
		},
	}
}
