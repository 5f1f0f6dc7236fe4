// Package tagging applies and removes key/value tags on cloud resources.
package tagging

import (
	"fmt"

	"tagflow/internal/domain"
	"tagflow/internal/metrics"
)

const (
	DefaultRegion       = "us-east-2"
	DefaultResourceType = "EC2"
)

// Descriptor identifies one cloud resource.
type Descriptor struct {
	ResourceID   string `json:"resourceId"`
	ResourceType string `json:"resourceType"`
	Region       string `json:"region"`
}

// Pair is one tag key/value.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p Pair) String() string {
	return p.Key + "=" + p.Value
}

// Defaults fill descriptor fields upstream data left empty.
type Defaults struct {
	Region       string
	ResourceType string
}

func (d Defaults) region() string {
	if d.Region == "" {
		return DefaultRegion
	}
	return d.Region
}

func (d Defaults) resourceType() string {
	if d.ResourceType == "" {
		return DefaultResourceType
	}
	return d.ResourceType
}

// Describe builds a descriptor from a resource record. resourceType wins over
// the legacy type field; both fall back to the defaults.
func (d Defaults) Describe(r domain.Resource) Descriptor {
	desc := Descriptor{
		ResourceID:   r.ResourceID,
		ResourceType: r.ResourceType,
		Region:       r.Region,
	}
	if desc.ResourceID == "" {
		desc.ResourceID = fmt.Sprintf("%d", r.ID)
	}
	if desc.ResourceType == "" {
		desc.ResourceType = r.Type
	}
	return d.Fill(desc)
}

// Fill defaults the empty region and resource type of desc.
func (d Defaults) Fill(desc Descriptor) Descriptor {
	if desc.Region == "" {
		desc.Region = d.region()
	}
	if desc.ResourceType == "" {
		desc.ResourceType = d.resourceType()
	}
	return desc
}

func observe(op, backend string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.TagOperationsTotal.WithLabelValues(op, backend, outcome).Inc()
}
