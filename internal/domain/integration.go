package domain

import "encoding/json"

// Integration links the dashboard to an external system (SMS provider,
// data-warehouse cube, user-feature storage).
type Integration struct {
	ID       string          `json:"id"`
	Name     string          `json:"name,omitempty"`
	Provide  string          `json:"provide,omitempty"`
	Details  json.RawMessage `json:"details,omitempty"`
	Provider *Provider       `json:"provider,omitempty"`
}

// Provider holds the connection settings shared by integrations.
type Provider struct {
	ID      string          `json:"id"`
	Name    string          `json:"name,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// SMSIntegrationDetails is the details payload of an SMS integration.
type SMSIntegrationDetails struct {
	CubeIntegration *Integration `json:"cubeIntegration,omitempty"`
}

// CubeIntegrationDetails is the details payload of a cube integration.
type CubeIntegrationDetails struct {
	SQL string `json:"SQL"`
}

// S3ProviderDetails carries object storage credentials. Field names follow
// the keys operators paste from their AWS credentials file.
type S3ProviderDetails struct {
	Region          string   `json:"region"`
	AccessKeyID     string   `json:"aws_access_key_id"`
	SecretAccessKey string   `json:"aws_secret_access_key"`
	Buckets         []string `json:"buckets,omitempty"`
}

// HasCredentials reports whether a static key pair is present.
func (p S3ProviderDetails) HasCredentials() bool {
	return p.AccessKeyID != "" && p.SecretAccessKey != ""
}

// ParseSMSIntegrationDetails decodes an SMS integration's details.
func (i *Integration) ParseSMSIntegrationDetails() (SMSIntegrationDetails, error) {
	var d SMSIntegrationDetails
	if i == nil || len(i.Details) == 0 {
		return d, nil
	}
	err := json.Unmarshal(i.Details, &d)
	return d, err
}

// ParseCubeIntegrationDetails decodes a cube integration's details.
func (i *Integration) ParseCubeIntegrationDetails() (CubeIntegrationDetails, error) {
	var d CubeIntegrationDetails
	if i == nil || len(i.Details) == 0 {
		return d, nil
	}
	err := json.Unmarshal(i.Details, &d)
	return d, err
}

// ParseS3ProviderDetails decodes the integration provider's credentials.
// A missing provider yields empty details.
func (i *Integration) ParseS3ProviderDetails() (S3ProviderDetails, error) {
	var d S3ProviderDetails
	if i == nil || i.Provider == nil || len(i.Provider.Details) == 0 {
		return d, nil
	}
	err := json.Unmarshal(i.Provider.Details, &d)
	return d, err
}
