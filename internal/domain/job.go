package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates the lifecycle states of a job record.
type JobStatus string

const (
	JobDraft     JobStatus = "draft"
	JobPublished JobStatus = "published"
	JobArchived  JobStatus = "archived"
)

// ProviderSMS is the integration "provide" value that marks SMS jobs.
const ProviderSMS = "SMS"

// Job is a scheduled unit of work that binds a placement to an integration.
// Details carries the denormalized placement and integration trees.
type Job struct {
	ID            string          `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description,omitempty" db:"description"`
	Status        JobStatus       `json:"status" db:"status"`
	PlacementID   string          `json:"placementId" db:"placementId"`
	IntegrationID string          `json:"integrationId" db:"integrationId"`
	Details       json.RawMessage `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time       `json:"createdAt" db:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt" db:"updatedAt"`
}

// JobDetails is the decoded shape of Job.Details.
type JobDetails struct {
	Placement   *Placement   `json:"placement,omitempty"`
	Integration *Integration `json:"integration,omitempty"`
}

// ParseDetails decodes the job's details column. An empty column yields
// zero-valued details.
func (j *Job) ParseDetails() (JobDetails, error) {
	var d JobDetails
	if len(j.Details) == 0 || string(j.Details) == "null" {
		return d, nil
	}
	if err := json.Unmarshal(j.Details, &d); err != nil {
		return d, err
	}
	return d, nil
}

// IsSMS reports whether the job dispatches through an SMS integration.
func (d JobDetails) IsSMS() bool {
	return d.Integration != nil && d.Integration.Provide == ProviderSMS
}

// Placement is a slot within a service that ad sets are targeted at.
type Placement struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	ContentType *ContentType `json:"contentType,omitempty"`
	AdSets      []AdSet      `json:"adSets,omitempty"`
}

// AdSet pairs an audience segment with content inside a placement.
type AdSet struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	CampaignID string   `json:"campaignId,omitempty"`
	Segment    *Segment `json:"segment,omitempty"`
	Content    *Content `json:"content,omitempty"`
}

// Segment is an audience definition. Where holds a JSON-logic rule tree
// serialized as a string.
type Segment struct {
	ID         string  `json:"id"`
	Name       string  `json:"name,omitempty"`
	Where      *string `json:"where,omitempty"`
	Population *int64  `json:"population,omitempty"`
}

// Content carries the operator-supplied values bound into a template.
type Content struct {
	ID     string     `json:"id"`
	Name   string     `json:"name,omitempty"`
	Values JSONObject `json:"values,omitempty"`
}

// ContentType describes the template and columns for a placement's content.
type ContentType struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Type    string          `json:"type,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}
