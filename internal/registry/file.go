package registry

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"multimodal-pipeline/pkg/models"
)

// File is the on-disk catalog format.
//
//	endpoints:
//	  - name: qwen-3-72b
//	    url: http://qwen-3-72b:8000
//	    modality: text
//	    cost_per_request: 0.001
//	    timeout: 60s
//	workflows:
//	  text_to_image:
//	    - {stage: text_enhancement, model: qwen-3-72b, purpose: enhance_prompt}
//	    - {stage: image_generation, model: sdxl, purpose: generate_image, critical: true}
//	fallback:
//	  - {stage: text_processing, model: qwen-3-72b, purpose: process_input}
type File struct {
	Endpoints []EndpointSpec                      `yaml:"endpoints"`
	Workflows map[string][]models.StageDescriptor `yaml:"workflows"`
	Fallback  []models.StageDescriptor            `yaml:"fallback,omitempty"`
}

// EndpointSpec is an endpoint as written in a catalog file. Omitted
// max_retries and timeout take the built-in defaults.
type EndpointSpec struct {
	Name           string          `yaml:"name"`
	URL            string          `yaml:"url"`
	Modality       models.Modality `yaml:"modality"`
	CostPerRequest float64         `yaml:"cost_per_request"`
	MaxRetries     *int            `yaml:"max_retries,omitempty"`
	Timeout        time.Duration   `yaml:"timeout,omitempty"`
	HealthCheckURL string          `yaml:"health_check_url,omitempty"`
}

// Load builds the registry and catalog from path, or from the built-in
// definitions when path is empty.
func Load(path string) (*Registry, *Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*Registry, *Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses YAML catalog data.
func Parse(data []byte) (*Registry, *Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	endpoints := make([]models.Endpoint, 0, len(f.Endpoints))
	for _, spec := range f.Endpoints {
		endpoints = append(endpoints, spec.endpoint())
	}
	reg, err := NewRegistry(endpoints)
	if err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	names := make([]string, 0, len(f.Workflows))
	for name := range f.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)

	workflows := make([]models.WorkflowDefinition, 0, len(names))
	for _, name := range names {
		workflows = append(workflows, models.WorkflowDefinition{Name: name, Stages: f.Workflows[name]})
	}

	fallback := FallbackWorkflow
	if len(f.Fallback) > 0 {
		fallback = models.WorkflowDefinition{Name: FallbackWorkflow.Name, Stages: f.Fallback}
	}

	cat, err := NewCatalogWithFallback(workflows, fallback, reg)
	if err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}
	return reg, cat, nil
}

// Marshal renders reg and cat in the catalog file format.
func Marshal(reg *Registry, cat *Catalog) ([]byte, error) {
	f := File{Workflows: make(map[string][]models.StageDescriptor)}
	for _, ep := range reg.Endpoints() {
		retries := ep.MaxRetries
		f.Endpoints = append(f.Endpoints, EndpointSpec{
			Name:           ep.Name,
			URL:            ep.URL,
			Modality:       ep.Modality,
			CostPerRequest: ep.CostPerRequest,
			MaxRetries:     &retries,
			Timeout:        ep.Timeout,
			HealthCheckURL: ep.HealthCheckURL,
		})
	}
	for _, wf := range cat.Workflows() {
		f.Workflows[wf.Name] = wf.Stages
	}
	f.Fallback = cat.Fallback().Stages
	return yaml.Marshal(f)
}

func (s EndpointSpec) endpoint() models.Endpoint {
	ep := models.Endpoint{
		Name:           s.Name,
		URL:            s.URL,
		Modality:       s.Modality,
		CostPerRequest: s.CostPerRequest,
		MaxRetries:     defaultMaxRetries,
		Timeout:        s.Timeout,
		HealthCheckURL: s.HealthCheckURL,
	}
	if s.MaxRetries != nil {
		ep.MaxRetries = *s.MaxRetries
	}
	if ep.Timeout == 0 {
		ep.Timeout = defaultTimeout
	}
	return ep
}
