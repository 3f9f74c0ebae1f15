package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/campaign-dashboard/internal/pkg/httputil"
	"github.com/ignite/campaign-dashboard/internal/service/job"
)

type processAllResponse struct {
	Results   []job.RunResult `json:"results"`
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Published int             `json:"published"`
}

// GetJobSQL previews the scripts a run of the job would execute.
//
//	GET /api/jobs/{id}/sql
func (h *Handlers) GetJobSQL(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJobError(w, errUnavailable)
		return
	}
	out, err := h.jobs.GenerateJobSQL(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondJobError(w, err)
		return
	}
	httputil.OK(w, out)
}

// ProcessJob runs one SMS job synchronously.
//
//	POST /api/jobs/{id}/process
func (h *Handlers) ProcessJob(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJobError(w, errUnavailable)
		return
	}
	res, err := h.jobs.ProcessJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondJobError(w, err)
		return
	}
	httputil.OK(w, res)
}

// ProcessSMSJobs runs every eligible SMS job. Per-job failures are reported
// in the results, not as an error status.
//
//	POST /api/jobs/sms/process
func (h *Handlers) ProcessSMSJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJobError(w, errUnavailable)
		return
	}
	results, err := h.jobs.ProcessAll(r.Context())
	if err != nil {
		respondJobError(w, err)
		return
	}
	resp := processAllResponse{Results: results, Processed: len(results)}
	if resp.Results == nil {
		resp.Results = []job.RunResult{}
	}
	for _, res := range results {
		if res.Err != "" {
			resp.Failed++
		}
		resp.Published += res.Published
	}
	httputil.OK(w, resp)
}
