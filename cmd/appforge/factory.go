package main

import (
	"fmt"
	"log"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/appforge/internal/config"
	"github.com/ShayCichocki/appforge/internal/generate"
	"github.com/ShayCichocki/appforge/internal/notify"
	"github.com/ShayCichocki/appforge/internal/pipeline"
	"github.com/ShayCichocki/appforge/internal/publish"
	"github.com/ShayCichocki/appforge/internal/stage"
	"github.com/ShayCichocki/appforge/internal/state"
)

// stack is a fully wired pipeline and the resources it owns.
type stack struct {
	orch    *pipeline.Orchestrator
	journal *state.DB
	llm     *generate.Client
}

// Close releases the journal.
func (s *stack) Close() {
	if err := s.journal.Close(); err != nil {
		log.Printf("[appforge] close journal: %v", err)
	}
}

// buildStack wires the generator, publisher, notifier, and journal from cfg.
// events may be nil.
func buildStack(cfg *config.Config, secrets *config.SecretStore, events *pipeline.EventEmitter) (*stack, error) {
	llm, err := generate.NewClient(generate.ClientConfig{
		Model:         anthropic.Model(cfg.LLM.Model),
		MaxTokens:     cfg.LLM.MaxTokens,
		MaxRetries:    cfg.LLM.MaxRetries,
		APIKey:        cfg.LLM.APIKey,
		UseAWSBedrock: cfg.LLM.UseBedrock,
		AWSRegion:     cfg.LLM.AWSRegion,
		AWSProfile:    cfg.LLM.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create LLM client: %w", err)
	}

	gh, err := publish.NewClient(cfg.GitHub.Token, cfg.GitHub.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create GitHub client: %w", err)
	}

	journal, err := state.OpenMemory()
	if err != nil {
		return nil, fmt.Errorf("open run journal: %w", err)
	}
	journal.SetRetention(cfg.Server.RunRetention)

	orch := pipeline.New(pipeline.Config{
		Generator: generate.NewGenerator(llm),
		Stager:    stage.NewOS(),
		Publisher: publish.NewPublisher(gh, publish.Options{
			Atomic:      cfg.Publish.CommitMode == config.CommitModeAtomic,
			Rollback:    cfg.Publish.Rollback,
			EnablePages: cfg.Publish.EnablePages,
		}),
		Notifier: notify.New(notify.Config{
			MaxAttempts:    cfg.Notify.MaxAttempts,
			BackoffUnit:    cfg.Notify.BackoffUnit,
			RequestTimeout: cfg.Notify.RequestTimeout,
		}),
		Journal: journal,
		Secrets: secrets,
		Timeout: cfg.Pipeline.Timeout,
		Events:  events,
	})

	return &stack{orch: orch, journal: journal, llm: llm}, nil
}

// loadValidConfig loads configuration and fails fast on missing secrets.
func loadValidConfig() (*config.Config, *config.SecretStore, error) {
	cfg, v, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	secrets := config.NewSecretStore(cfg.VerificationSecret)
	if config.WatchSecret(v, secrets) {
		log.Printf("[appforge] watching %s for secret rotation", v.ConfigFileUsed())
	}
	return cfg, secrets, nil
}
