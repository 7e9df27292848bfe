package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	svcerrors "github.com/adverant/nexus/pdfplaceholder/internal/errors"
	"github.com/adverant/nexus/pdfplaceholder/internal/model"
	"github.com/adverant/nexus/pdfplaceholder/internal/storage"
	"github.com/adverant/nexus/pdfplaceholder/internal/templates"
)

// multipartMemory is the part of an upload form kept in memory; the rest spills to disk.
const multipartMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, svcerrors.NewInvalidParameterError("file", "exceeds maximum upload size"))
			return
		}
		s.writeError(w, r, svcerrors.NewInvalidParameterError("file", err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("file", "missing multipart field"))
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("file", "only PDF files are allowed"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
	if err != nil {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("file", err.Error()))
		return
	}
	if int64(len(data)) > s.maxUpload {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("file", fmt.Sprintf("larger than %d bytes", s.maxUpload)))
		return
	}

	doc, err := s.svc.Upload(r.Context(), header.Filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []model.StoredDocument{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"pdfs": docs, "count": len(docs)})
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.svc.Info(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteDocument(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleDetectText(w http.ResponseWriter, r *http.Request) {
	var req detectTextRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rect, err := req.rect()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.svc.DetectText(r.Context(), r.PathValue("id"), req.Page, rect)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lines := res.Lines
	if lines == nil {
		lines = []model.LineInfo{}
	}
	s.writeJSON(w, http.StatusOK, detectTextResponse{
		DetectedText:    res.Text,
		DetectionSource: res.Source,
		Lines:           lines,
		Rect:            rect.Array(),
	})
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.DocumentID == "" {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("pdf_id", "required"))
		return
	}

	in := templates.TemplateInput{
		DocumentID:   req.DocumentID,
		Name:         req.Name,
		Description:  req.Description,
		Placeholders: make([]model.Placeholder, len(req.Placeholders)),
	}
	for i, p := range req.Placeholders {
		ph, err := p.toModel(i)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		in.Placeholders[i] = ph
	}

	t, err := s.svc.CreateTemplate(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templateFromModel(t))
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := s.svc.ListTemplates(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ts == nil {
		ts = []templates.TemplateSummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"templates": ts, "count": len(ts)})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.GetTemplate(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, templateFromModel(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.svc.DeleteTemplate(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// handleGenerate streams the generated PDF back without storing it.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	g, err := s.svc.Generate(r.Context(), id, req.Replacements)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", contentDisposition(storage.OutputFilename(req.OutputFilename, id)))
	h.Set("Content-Length", strconv.Itoa(len(g.Data)))
	h.Set("X-Placeholders-Replaced", strconv.Itoa(g.Report.PlaceholdersReplaced))
	if len(g.Report.Warnings) > 0 {
		h.Set("X-Generation-Warnings", headerJSON(g.Report.Warnings))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(g.Data); err != nil {
		s.logger.Warn("Failed to stream generated PDF", "template", id, "error", err)
	}
}

func (s *Server) handleGenerateJSON(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.GenerateArtifact(r.Context(), r.PathValue("id"), req.Replacements, req.OutputFilename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifactFromResult(res))
}

func (s *Server) handleGenerateAsync(w http.ResponseWriter, r *http.Request) {
	if s.async == nil {
		s.writeError(w, r, svcerrors.NewQueueFailedError("template:generate", errors.New("asynchronous generation requires REDIS_URL")))
		return
	}
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.svc.GetTemplate(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.async.EnqueueGeneration(r.Context(), id, req.Replacements, req.OutputFilename)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":     job.ID,
		"status":     job.Status,
		"status_url": "/api/jobs/" + job.ID,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Files().Store.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	a, data, err := s.svc.Files().LoadArtifact(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", contentDisposition(a.Filename))
	h.Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("Failed to stream artifact", "artifact", a.ID, "error", err)
	}
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TargetDocumentID == "" {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("target_pdf_id", "required"))
		return
	}
	res, err := s.svc.Apply(r.Context(), r.PathValue("id"), templates.ApplyInput{
		TargetDocumentID: req.TargetDocumentID,
		Replacements:     req.Replacements,
		DetectAndReplace: req.DetectAndReplace,
		OutputFilename:   req.OutputFilename,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, artifactFromResult(res))
}

func (s *Server) handleDetectAt(w http.ResponseWriter, r *http.Request) {
	var req detectAtRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TargetDocumentID == "" {
		s.writeError(w, r, svcerrors.NewInvalidParameterError("target_pdf_id", "required"))
		return
	}
	id := r.PathValue("id")
	values, err := s.svc.DetectAt(r.Context(), id, req.TargetDocumentID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detectAtResponse{
		TemplateID:       id,
		TargetDocumentID: req.TargetDocumentID,
		DetectedValues:   values,
	})
}

func artifactFromResult(res *templates.ArtifactResult) artifactResponse {
	warnings := res.Report.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return artifactResponse{
		ArtifactID:           res.Artifact.ID,
		Filename:             res.Artifact.Filename,
		Size:                 res.Artifact.Size,
		PlaceholdersReplaced: res.Report.PlaceholdersReplaced,
		Warnings:             warnings,
		DownloadURL:          "/api/artifacts/" + res.Artifact.ID,
		DetectedValues:       res.Detected,
	}
}
