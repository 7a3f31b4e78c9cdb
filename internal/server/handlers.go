package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-cli/internal/importer"
	"github.com/sells-group/crm-cli/internal/sheet"
	"github.com/sells-group/crm-cli/internal/stage"
)

// multipartOverhead is allowed on top of the file size limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) maxUpload() int64 {
	if s.cfg.MaxUploadBytes > 0 {
		return s.cfg.MaxUploadBytes
	}
	return sheet.DefaultMaxBytes
}

// handleImport runs a chunked import of the uploaded workbook.
// Form fields: file (required), pipeline_id (required), sheet (optional).
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	limit := s.maxUpload()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	pipelineID, err := strconv.ParseInt(r.FormValue("pipeline_id"), 10, 64)
	if err != nil || pipelineID <= 0 {
		writeError(w, http.StatusBadRequest, "pipeline_id is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload")
		return
	}

	ws, err := sheet.ReadBytes(data, sheet.Options{SheetName: r.FormValue("sheet"), MaxBytes: limit})
	if err != nil {
		if int64(len(data)) > limit {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.importer.Run(r.Context(), ws, importer.Request{
		PipelineID:     pipelineID,
		Chunked:        true,
		RequireCompany: true,
	})
	if err != nil {
		if eris.Is(err, importer.ErrPipelineNotFound) {
			writeError(w, http.StatusNotFound, "pipeline not found")
			return
		}
		s.log.Error("import failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListPipelines(w http.ResponseWriter, r *http.Request) {
	pipelines, err := s.cfg.Store.ListPipelines(r.Context())
	if err != nil {
		s.log.Error("list pipelines", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list pipelines failed")
		return
	}
	writeJSON(w, http.StatusOK, pipelines)
}

func (s *Server) handleListStages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"allowed": s.cfg.Table.Allowed(),
		"default": s.cfg.Table.Default(),
	})
}

type canonicalizeRequest struct {
	Label      string `json:"label"`
	PipelineID int64  `json:"pipeline_id,omitempty"`
}

type canonicalizeResponse struct {
	Label      string `json:"label"`
	Normalized string `json:"normalized"`
	Stage      string `json:"stage"`
}

func (s *Server) handleCanonicalize(w http.ResponseWriter, r *http.Request) {
	var req canonicalizeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var pipelineStages []string
	if req.PipelineID != 0 {
		p, err := s.cfg.Store.GetPipeline(r.Context(), req.PipelineID)
		if err != nil {
			s.log.Error("get pipeline", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get pipeline failed")
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, "pipeline not found")
			return
		}
		pipelineStages = p.Stages
	}

	writeJSON(w, http.StatusOK, canonicalizeResponse{
		Label:      req.Label,
		Normalized: stage.Normalize(req.Label),
		Stage:      s.cfg.Table.Canonicalize(req.Label, pipelineStages),
	})
}
