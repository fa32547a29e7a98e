package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptConfig holds the prompts sent to the extraction model
type PromptConfig struct {
	ReceiptExtraction struct {
		System       string `yaml:"system"`
		UserTemplate string `yaml:"user_template"`
	} `yaml:"receipt_extraction"`
}

// LoadPrompts loads prompt configuration from a YAML file, or the built-in
// prompts when promptsPath is empty
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data := defaultPrompts
	if promptsPath != "" {
		var err error
		data, err = os.ReadFile(promptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.ReceiptExtraction.UserTemplate == "" {
		return nil, fmt.Errorf("prompts file has no receipt_extraction.user_template")
	}

	return &prompts, nil
}

// RenderUser renders the user prompt with the taxonomy text
func (p *PromptConfig) RenderUser(taxonomyText string) (string, error) {
	return renderTemplate(p.ReceiptExtraction.UserTemplate, struct{ Taxonomy string }{taxonomyText})
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
