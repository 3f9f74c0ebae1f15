package api

import (
	"net/http"

	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
	"github.com/ignite/campaign-dashboard/internal/templating"
)

type previewTemplateRequest struct {
	Template string         `json:"template"`
	Values   map[string]any `json:"values"`
}

type previewTemplateResponse struct {
	Variables []string `json:"variables"`
	Text      string   `json:"text"`
}

// PreviewTemplate lists a template's variables and renders it with values.
// Variables without a value stay as placeholders. Editor mention markup is
// flattened first.
//
//	POST /api/templates/preview
func (h *Handlers) PreviewTemplate(w http.ResponseWriter, r *http.Request) {
	var req previewTemplateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Template == "" {
		httputil.BadRequest(w, "template is required")
		return
	}
	plain := templating.ToPlainText(req.Template)
	vars := h.templates.ExtractVariables(plain)
	if vars == nil {
		vars = []string{}
	}
	values := req.Values
	if values == nil {
		values = map[string]any{}
	}
	httputil.OK(w, previewTemplateResponse{
		Variables: vars,
		Text:      h.templates.Substitute(plain, values),
	})
}
