package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"forge/internal/bootstrap"
	"forge/internal/config"
	"forge/internal/orchestrator"
)

const version = "0.3.0"

type rootOptions struct {
	configPath string
	lang       string
	logOut     io.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logOut: os.Stderr}
	root := &cobra.Command{
		Use:           "forge",
		Short:         "Conversational adventure authoring",
		Long:          "Forge walks a game master from tuning dials to a finished adventure: frame, outline, scenes, NPCs, adversaries, items and echoes.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config JSON/JSONC")
	root.PersistentFlags().StringVar(&opts.lang, "lang", "", "UI language (en, zh-CN)")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newTUICmd(opts),
		newSessionsCmd(opts),
		newMCPCmd(opts),
		newImportCmd(opts),
		newInitCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() *log.Logger {
	return log.New(o.logOut, "forge: ", log.LstdFlags)
}

func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if lang := strings.TrimSpace(o.lang); lang != "" {
		cfg.Language = lang
	}
	return cfg, nil
}

// build loads config and wires the runtime. Callers must Close the result.
func (o *rootOptions) build() (config.Config, *bootstrap.BuildResult, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, err
	}
	res, err := o.buildWith(cfg)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, res, nil
}

func (o *rootOptions) buildWith(cfg config.Config) (*bootstrap.BuildResult, error) {
	res, err := bootstrap.Build(cfg, o.logger())
	if err != nil {
		return nil, fmt.Errorf("init runtime: %w", err)
	}
	return res, nil
}

// openSession resumes id, or starts a new session named name when id is empty.
func openSession(orch *orchestrator.Orchestrator, id, name string) (*orchestrator.Session, error) {
	if id = strings.TrimSpace(id); id != "" {
		s, err := orch.Session(id)
		if err != nil {
			return nil, fmt.Errorf("resume session %s: %w", id, err)
		}
		return s, nil
	}
	s, err := orch.InitSession(strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return s, nil
}
