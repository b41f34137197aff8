package models

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Status is the lifecycle state shared by query entries and mutations
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// UpdatePolicy selects how the edit flow reconciles the cache after a write
type UpdatePolicy string

const (
	UpdatePolicyInvalidate UpdatePolicy = "invalidate"
	UpdatePolicyOptimistic UpdatePolicy = "optimistic"
)

// UnmarshalYAML implements custom YAML unmarshaling for UpdatePolicy
func (p *UpdatePolicy) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	switch str {
	case "invalidate", "optimistic":
		*p = UpdatePolicy(str)
		return nil
	default:
		return fmt.Errorf("invalid update policy '%s': must be one of 'invalidate', 'optimistic'", str)
	}
}
