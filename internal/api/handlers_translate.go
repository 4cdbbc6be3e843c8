package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dgallion1/doctranslate/internal/pipeline"
)

// uploadError carries the HTTP status for a rejected upload.
type uploadError struct {
	msg  string
	code int
}

func (e *uploadError) Error() string { return e.msg }

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.formOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	file.Close()

	job, err := s.enqueue(header, opts)
	if err != nil {
		var ue *uploadError
		if errors.As(err, &ue) {
			jsonError(w, ue.msg, ue.code)
			return
		}
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, jobAccepted(job))
}

func (s *Server) handleBatchTranslate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes*10+10*1024*1024)

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.formOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		jsonError(w, "at least one file is required", http.StatusBadRequest)
		return
	}

	results := make([]map[string]any, 0, len(files))
	for _, fh := range files {
		job, err := s.enqueue(fh, opts)
		if err != nil {
			results = append(results, map[string]any{
				"filename": sanitizeFilename(fh.Filename),
				"error":    err.Error(),
			})
			continue
		}
		results = append(results, jobAccepted(job))
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"jobs": results})
}

// formOptions reads the translation parameters shared by single and batch uploads.
func (s *Server) formOptions(r *http.Request) (pipeline.Options, error) {
	opts := pipeline.Options{
		TargetLanguage: strings.TrimSpace(r.FormValue("language")),
		CustomPrompt:   strings.TrimSpace(r.FormValue("prompt")),
		OutputFormat:   strings.TrimSpace(r.FormValue("output_format")),
	}
	if opts.TargetLanguage == "" {
		return opts, errors.New("language is required")
	}
	if v := r.FormValue("max_pages"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid max_pages: %q", v)
		}
		opts.MaxPages = n
	}
	if opts.OutputFormat != "" {
		if _, err := s.formats.ForExtension(opts.OutputFormat); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// enqueue stores an uploaded file in its own work directory and submits a job for it.
func (s *Server) enqueue(fh *multipart.FileHeader, opts pipeline.Options) (*pipeline.Job, error) {
	filename := sanitizeFilename(fh.Filename)
	if !s.formats.Supports(filename) {
		return nil, &uploadError{fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusBadRequest}
	}
	if fh.Size > s.cfg.MaxUploadBytes {
		return nil, &uploadError{fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	root := filepath.Join(s.cfg.WorkDir, "doctranslate-jobs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(root, "job-*")
	if err != nil {
		return nil, fmt.Errorf("create job dir: %w", err)
	}
	inputPath := filepath.Join(dir, filename)
	data, err := saveUpload(f, inputPath, s.cfg.MaxUploadBytes)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	job := pipeline.NewJob(filename, dir, inputPath, opts)
	job.ContentHash = pipeline.ContentHashHex(data)
	if err := s.service.Submit(job); err != nil {
		os.RemoveAll(dir)
		return nil, &uploadError{err.Error(), http.StatusServiceUnavailable}
	}
	s.log.Info("job queued", "job_id", job.ID, "filename", filename, "language", opts.TargetLanguage)
	return job, nil
}

func saveUpload(src io.Reader, path string, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, &uploadError{fmt.Sprintf("file exceeds max size (%d bytes)", limit), http.StatusRequestEntityTooLarge}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	return data, nil
}

func jobAccepted(job *pipeline.Job) map[string]any {
	snap := job.Snapshot()
	return map[string]any{
		"job_id":   snap.ID,
		"filename": snap.Filename,
		"status":   snap.Status,
		"poll_url": fmt.Sprintf("/api/translate/%s/status", snap.ID),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job := s.service.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	resp := map[string]any{
		"job_id":   snap.ID,
		"filename": snap.Filename,
		"language": snap.Language,
		"status":   snap.Status,
		"phase":    snap.Phase,
		"progress": snap.Progress,
	}
	if snap.Download {
		resp["download_url"] = fmt.Sprintf("/api/translate/%s/download", snap.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	job := s.service.GetJob(chi.URLParam(r, "jobID"))
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	if !snap.Download {
		jsonError(w, fmt.Sprintf("job is %s, no output to download", snap.Status), http.StatusConflict)
		return
	}

	path := job.OutputPath()
	f, err := os.Open(path)
	if err != nil {
		s.log.Error("open output", "job_id", snap.ID, "error", err)
		jsonError(w, "output no longer available", http.StatusGone)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		jsonError(w, "output no longer available", http.StatusGone)
		return
	}

	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": s.service.ListJobs()})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	err := s.service.RemoveJob(chi.URLParam(r, "jobID"))
	switch {
	case errors.Is(err, pipeline.ErrJobNotFound):
		jsonError(w, "job not found", http.StatusNotFound)
	case errors.Is(err, pipeline.ErrJobRunning):
		jsonError(w, err.Error(), http.StatusConflict)
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
