package registry

import (
	"fmt"
	"sort"

	"multimodal-pipeline/pkg/models"
)

// FallbackWorkflow is used when a request names no workflow, or an unknown one
// outside strict mode.
var FallbackWorkflow = models.WorkflowDefinition{
	Name: "default",
	Stages: []models.StageDescriptor{
		{Name: "text_processing", Endpoint: "qwen-3-72b", Purpose: models.PurposeProcessInput},
	},
}

// Catalog holds the named workflow definitions.
type Catalog struct {
	workflows map[string]models.WorkflowDefinition
	fallback  models.WorkflowDefinition
}

// NewCatalog indexes workflows by name and uses [FallbackWorkflow] for
// unnamed requests. Every stage must name an endpoint known to reg; pass a nil
// reg to skip that check.
func NewCatalog(workflows []models.WorkflowDefinition, reg *Registry) (*Catalog, error) {
	return NewCatalogWithFallback(workflows, FallbackWorkflow, reg)
}

// NewCatalogWithFallback is NewCatalog with a custom fallback workflow.
func NewCatalogWithFallback(workflows []models.WorkflowDefinition, fallback models.WorkflowDefinition, reg *Registry) (*Catalog, error) {
	if err := validateWorkflow(fallback, reg); err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	c := &Catalog{
		workflows: make(map[string]models.WorkflowDefinition, len(workflows)),
		fallback:  copyWorkflow(fallback),
	}
	for _, wf := range workflows {
		if err := validateWorkflow(wf, reg); err != nil {
			return nil, err
		}
		if _, dup := c.workflows[wf.Name]; dup {
			return nil, fmt.Errorf("workflow %q defined twice", wf.Name)
		}
		c.workflows[wf.Name] = copyWorkflow(wf)
	}
	return c, nil
}

func validateWorkflow(wf models.WorkflowDefinition, reg *Registry) error {
	if wf.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(wf.Stages) == 0 {
		return fmt.Errorf("workflow %q has no stages", wf.Name)
	}
	seen := make(map[string]bool, len(wf.Stages))
	for _, st := range wf.Stages {
		if st.Name == "" || st.Endpoint == "" || st.Purpose == "" {
			return fmt.Errorf("workflow %q: stage needs stage, model and purpose", wf.Name)
		}
		if seen[st.Name] {
			return fmt.Errorf("workflow %q: duplicate stage %q", wf.Name, st.Name)
		}
		seen[st.Name] = true
		if reg != nil {
			if _, err := reg.Resolve(st.Endpoint); err != nil {
				return fmt.Errorf("workflow %q stage %q: %w", wf.Name, st.Name, err)
			}
		}
	}
	return nil
}

// Fallback returns the workflow used for unnamed requests.
func (c *Catalog) Fallback() models.WorkflowDefinition {
	return copyWorkflow(c.fallback)
}

// StagesFor returns the stages of the named workflow. An empty or unknown name
// yields the single-stage fallback; found reports whether name was known.
func (c *Catalog) StagesFor(name string) (stages []models.StageDescriptor, found bool) {
	if wf, ok := c.workflows[name]; ok {
		return copyStages(wf.Stages), true
	}
	return copyStages(c.fallback.Stages), false
}

// Lookup returns the named workflow or ErrWorkflowNotFound.
func (c *Catalog) Lookup(name string) (models.WorkflowDefinition, error) {
	wf, ok := c.workflows[name]
	if !ok {
		return models.WorkflowDefinition{}, fmt.Errorf("%w: %s", ErrWorkflowNotFound, name)
	}
	return copyWorkflow(wf), nil
}

// Workflows returns every definition sorted by name.
func (c *Catalog) Workflows() []models.WorkflowDefinition {
	out := make([]models.WorkflowDefinition, 0, len(c.workflows))
	for _, wf := range c.workflows {
		out = append(out, copyWorkflow(wf))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func copyWorkflow(wf models.WorkflowDefinition) models.WorkflowDefinition {
	return models.WorkflowDefinition{Name: wf.Name, Stages: copyStages(wf.Stages)}
}

func copyStages(stages []models.StageDescriptor) []models.StageDescriptor {
	out := make([]models.StageDescriptor, len(stages))
	copy(out, stages)
	return out
}
