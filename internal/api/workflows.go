package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"multimodal-pipeline/pkg/models"
)

// WorkflowList is the body of GET /api/v1/workflows.
type WorkflowList struct {
	Workflows []string                            `json:"workflows"`
	Details   map[string][]models.StageDescriptor `json:"details"`
	Fallback  models.WorkflowDefinition           `json:"fallback"`
	Models    []models.Endpoint                   `json:"models"`
}

// ListWorkflows returns every workflow with its stages
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	workflows := s.Catalog.Workflows()
	list := WorkflowList{
		Workflows: make([]string, 0, len(workflows)),
		Details:   make(map[string][]models.StageDescriptor, len(workflows)),
		Fallback:  s.Catalog.Fallback(),
		Models:    s.Registry.Endpoints(),
	}
	for _, wf := range workflows {
		list.Workflows = append(list.Workflows, wf.Name)
		list.Details[wf.Name] = wf.Stages
	}
	return c.JSON(http.StatusOK, list)
}

// GetWorkflow returns one workflow by name
// (GET /api/v1/workflows/:name)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.Catalog.Lookup(c.Param("name"))
	if err != nil {
		return writeError(c, http.StatusNotFound, "Workflow not found", err.Error())
	}
	return c.JSON(http.StatusOK, wf)
}
