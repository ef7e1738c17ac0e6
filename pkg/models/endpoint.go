package models

import (
	"math"
	"time"
)

// Modality is the class of model served by a backend.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
)

// Valid reports whether m is one of the known modalities.
func (m Modality) Valid() bool {
	switch m {
	case ModalityText, ModalityImage, ModalityAudio:
		return true
	}
	return false
}

// Endpoint describes a registered model backend and its call policy.
type Endpoint struct {
	Name           string        `json:"name" yaml:"name"`
	URL            string        `json:"url" yaml:"url"`
	Modality       Modality      `json:"modality" yaml:"modality"`
	CostPerRequest float64       `json:"cost_per_request" yaml:"cost_per_request"`
	MaxRetries     int           `json:"max_retries" yaml:"max_retries"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout"`
	HealthCheckURL string        `json:"health_check_url,omitempty" yaml:"health_check_url,omitempty"`
}

// CostCents converts the per-request cost to minor currency units.
func (e Endpoint) CostCents() int64 {
	return int64(math.Round(e.CostPerRequest * 100))
}

// HealthURL returns the probe address, defaulting to {url}/health.
func (e Endpoint) HealthURL() string {
	if e.HealthCheckURL != "" {
		return e.HealthCheckURL
	}
	return e.URL + "/health"
}
