package app

import (
	"context"
	"fmt"

	"minifitest/internal/agent"
	"minifitest/internal/config"
	"minifitest/internal/container"
	"minifitest/internal/scenario"
	"minifitest/internal/staging"
	"minifitest/pkg/harness"
)

// images lists every image the harness needs, agent first.
func images(h *harness.Harness) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(img string) {
		if img != "" && !seen[img] {
			seen[img] = true
			out = append(out, img)
		}
	}
	if h.Spec.Agent != nil {
		add(h.Spec.Agent.Image)
	}
	for _, c := range h.Spec.Containers {
		add(c.Image)
	}
	return out
}

// buildScenario declares every container of the harness on s. Supporting
// containers come first so they are up before the agent starts.
func buildScenario(ctx context.Context, cfg *config.Config, s *scenario.Context) error {
	for _, spec := range cfg.Spec.Containers {
		c, err := s.AddContainer(spec.Name, container.Options{
			Image:      spec.Image,
			Env:        spec.Env,
			Ports:      spec.Ports,
			Command:    spec.Command,
			Entrypoint: spec.Entrypoint,
			User:       spec.User,
			Labels:     cfg.Metadata.Labels,
		}, spec.ReadyLog, spec.ReadyTimeout)
		if err != nil {
			return err
		}
		if err := declareFiles(cfg, c, spec.Files, spec.Directories, spec.HostFiles); err != nil {
			return err
		}
	}

	if cfg.Spec.Agent == nil {
		return nil
	}
	return buildAgent(ctx, cfg, s, cfg.Spec.Agent)
}

func buildAgent(ctx context.Context, cfg *config.Config, s *scenario.Context, spec *harness.Agent) error {
	opts := agent.Options{
		Image:        spec.Image,
		Env:          spec.Env,
		Ports:        spec.Ports,
		Labels:       cfg.Metadata.Labels,
		ReadyTimeout: spec.ReadyTimeout,
	}

	if spec.FlowConfig != "" {
		flow, err := cfg.ReadFile(spec.FlowConfig)
		if err != nil {
			return err
		}
		opts.FlowConfig = flow
	}

	if spec.Layout != "" {
		layout, err := agent.ParseLayout(spec.Layout)
		if err != nil {
			return err
		}
		opts.Layout = &layout
	}

	a, err := s.Agent(ctx, config.AgentName(spec), opts)
	if err != nil {
		return err
	}

	for _, entry := range spec.Properties {
		a.SetProperty(config.SplitProperty(entry))
	}
	for _, entry := range spec.LogProperties {
		a.SetLogProperty(config.SplitProperty(entry))
	}
	if spec.Controller {
		a.EnableControllerSocket()
	}
	if spec.FIPS {
		a.EnableFIPSMode()
	}

	return declareFiles(cfg, a, spec.Files, spec.Directories, spec.HostFiles)
}

func mode(readOnly bool) staging.Mode {
	if readOnly {
		return staging.ReadOnly
	}
	return staging.ReadWrite
}

// declareFiles adds the files, directories and host files of a spec to c.
func declareFiles(cfg *config.Config, c container.Container, files []harness.FileSpec, dirs []harness.DirectorySpec, hostFiles []harness.HostFileSpec) error {
	for _, f := range files {
		content := f.Content
		if f.Source != "" {
			var err error
			if content, err = cfg.ReadFile(f.Source); err != nil {
				return err
			}
		}
		if err := c.AddFile(staging.FileAt(f.Path, content).WithMode(mode(f.ReadOnly))); err != nil {
			return fmt.Errorf("failed to add %s to %s: %w", f.Path, c.Name(), err)
		}
	}

	for _, d := range dirs {
		dir := staging.NewDirectory(d.Path)
		dir.Mode = mode(d.ReadOnly)
		for _, entry := range d.Files {
			dir.AddFile(entry.Name, entry.Content)
		}
		if err := c.AddDirectory(dir); err != nil {
			return fmt.Errorf("failed to add directory %s to %s: %w", d.Path, c.Name(), err)
		}
	}

	for _, h := range hostFiles {
		hf := staging.NewHostFile(cfg.Resolve(h.Source), h.Target)
		hf.Mode = mode(h.ReadOnly)
		if err := c.AddHostFile(hf); err != nil {
			return fmt.Errorf("failed to add host file %s to %s: %w", h.Source, c.Name(), err)
		}
	}
	return nil
}
