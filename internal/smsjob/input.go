// Package smsjob turns a placement's ad sets into the DuckDB script that
// matches every cube row against each ad set's audience, renders the SMS
// message per recipient, and writes the partitioned result.
package smsjob

import (
	"fmt"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/pkg/logger"
	"github.com/ignite/campaign-dashboard/internal/segmentation"
	"github.com/ignite/campaign-dashboard/internal/templating"
)

// AdSetInput is everything the planner needs about one ad set.
type AdSetInput struct {
	ID          string         `json:"id"`
	Filter      string         `json:"filter,omitempty"`
	Variables   []string       `json:"variables"`
	Columns     []string       `json:"columns"`
	Values      map[string]any `json:"values"`
	Template    string         `json:"template"`
	PlacementID string         `json:"placementId"`
	ToColumn    string         `json:"toColumn"`
}

// JobInput is built once per job run from the placement's current state.
type JobInput struct {
	Details domain.SMSContentTypeDetail `json:"details"`
	AdSets  []AdSetInput                `json:"placementAdSetsInput"`
}

// NewJobInput builds the planner input for a placement. A segment rule that
// fails to decode or compile fails the whole input with ErrInvalidSegment.
func NewJobInput(placement *domain.Placement) (JobInput, error) {
	var in JobInput
	if placement == nil {
		return in, ErrMissingPlacement
	}
	if placement.ContentType == nil {
		return in, ErrMissingContentType
	}
	details, err := domain.ParseSMSContentTypeDetail(placement.ContentType.Details)
	if err != nil {
		return in, fmt.Errorf("parse content type details: %w", err)
	}
	if details.Template == "" {
		return in, ErrMissingTemplate
	}
	if details.ToColumn == "" {
		return in, ErrMissingRecipientColumn
	}
	in.Details = details

	template := templating.ToPlainText(details.Template)
	variables := templating.ExtractVariables(template)
	if variables == nil {
		variables = []string{}
	}
	columns := details.ColumnNames()

	in.AdSets = make([]AdSetInput, 0, len(placement.AdSets))
	for _, adSet := range placement.AdSets {
		values := map[string]any{}
		if adSet.Content != nil && adSet.Content.Values != nil {
			values = adSet.Content.Values
		}

		var filter string
		if adSet.Segment != nil && adSet.Segment.Where != nil {
			filter, err = segmentation.CompileFilterJSON(details.Columns, *adSet.Segment.Where)
			if err != nil {
				logger.Warn("segment rule rejected", "ad_set_id", adSet.ID, "error", err)
				return JobInput{}, fmt.Errorf("%w: ad set %s: %w", ErrInvalidSegment, adSet.ID, err)
			}
		}

		in.AdSets = append(in.AdSets, AdSetInput{
			ID:          adSet.ID,
			Filter:      filter,
			Variables:   variables,
			Columns:     columns,
			Values:      values,
			Template:    template,
			PlacementID: placement.ID,
			ToColumn:    details.ToColumn,
		})
	}
	return in, nil
}
