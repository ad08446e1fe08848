package generation

import (
	"fmt"

	"reading-leveler/internal/config"
	"reading-leveler/internal/llm"
)

// FromConfig picks the generator named by GENERATOR_PROVIDER.
func FromConfig(cfg *config.Config) (Generator, error) {
	switch cfg.GeneratorProvider {
	case config.GeneratorWorkflow:
		if cfg.WorkflowEndpoint == "" {
			return nil, fmt.Errorf("WORKFLOW_ENDPOINT is required for the workflow provider")
		}
		return NewWorkflowClient(cfg.WorkflowEndpoint, cfg.WorkflowBotID, cfg.WorkflowAPIKey, cfg.WorkflowTimeout), nil
	case config.GeneratorOpenAI, config.GeneratorYandex:
		client, err := llm.NewFactory(cfg).CreateClient(string(cfg.GeneratorProvider), cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		return NewLLMGenerator(client), nil
	case config.GeneratorSimulated:
		return Simulated{}, nil
	default:
		return nil, fmt.Errorf("unknown generator provider: %s", cfg.GeneratorProvider)
	}
}
