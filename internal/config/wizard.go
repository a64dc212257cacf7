package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard, saves the result to
// path and returns it.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to expertroute! Let's configure the routing engine.")
	fmt.Println()

	cfg := DefaultConfig()

	providerPrompt := promptui.Select{
		Label: "Select classification provider",
		Items: []string{"anthropic", "openai", "openrouter", "ollama"},
	}
	_, providerStr, err := providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	provider := ProviderType(providerStr)

	qualityPrompt := promptui.Select{
		Label: "Select classifier quality tier",
		Items: []string{
			"lite   — fast & cheap (haiku / gpt-4o-mini)",
			"normal — balanced (sonnet / gpt-4o)",
			"max    — highest quality (opus / gpt-4)",
		},
	}
	qualityIdx, _, err := qualityPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("quality selection: %w", err)
	}
	tiers := []QualityTier{QualityLite, QualityNormal, QualityMax}
	quality := tiers[qualityIdx]

	cfg.Classifier.Provider = provider
	cfg.Classifier.Quality = quality
	cfg.Classifier.Model = GetPreset(provider, quality).Model

	dbPrompt := promptui.Prompt{
		Label:   "Database path",
		Default: cfg.Database.Path,
	}
	if cfg.Database.Path, err = dbPrompt.Run(); err != nil {
		return nil, fmt.Errorf("database path: %w", err)
	}

	policyPrompt := promptui.Select{
		Label: "When is a question answered?",
		Items: []string{
			"first_response — the first human response answers it",
			"on_accept      — the asker accepts a response",
		},
	}
	policyIdx, _, err := policyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("answer policy: %w", err)
	}
	cfg.Lifecycle.AnswerPolicy = []AnswerPolicy{AnswerOnFirstResponse, AnswerOnAccept}[policyIdx]

	portPrompt := promptui.Prompt{
		Label:   "HTTP port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 || n > 65535 {
				return fmt.Errorf("enter a port between 1 and 65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	syntheticPrompt := promptui.Prompt{
		Label:     "Enable synthetic demonstration responses",
		IsConfirm: true,
	}
	if _, err := syntheticPrompt.Run(); err == nil {
		cfg.Synthetic.Enabled = true
		cfg.Synthetic.Provider = provider
		cfg.Synthetic.Model = cfg.Classifier.Model
	}

	if envVar := APIKeyEnvVar(provider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("\nNote: Set %s in your environment before running expertroute server.\n", envVar)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}
