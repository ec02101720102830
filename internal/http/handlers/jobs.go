package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"promoforge/internal/domain"
	"promoforge/internal/providers/mediagen"
)

const maxScenesPerJob = 20

type sceneRequest struct {
	ImageURL        string  `json:"image_url,omitempty"`
	ImageAssetID    string  `json:"image_asset_id,omitempty"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
}

type createJobRequest struct {
	ProjectID    string         `json:"project_id"`
	Title        string         `json:"title"`
	Language     string         `json:"language,omitempty"`
	VoiceID      string         `json:"voice_id,omitempty"`
	MusicStyle   string         `json:"music_style,omitempty"`
	MusicEnabled bool           `json:"music_enabled"`
	Narration    string         `json:"narration,omitempty"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	FadeSeconds  float64        `json:"fade_seconds,omitempty"`
	Scenes       []sceneRequest `json:"scenes"`
}

type sceneResponse struct {
	ID              string  `json:"id"`
	Index           int     `json:"index"`
	Status          string  `json:"status"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
	VideoURL        string  `json:"video_url,omitempty"`
	ErrorMessage    string  `json:"error_message,omitempty"`
}

type jobResponse struct {
	ID           string           `json:"id"`
	ProjectID    string           `json:"project_id"`
	Title        string           `json:"title"`
	Status       string           `json:"status"`
	Config       domain.JobConfig `json:"config"`
	OutputURL    string           `json:"output_url,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	Scenes       []sceneResponse  `json:"scenes,omitempty"`
}

// JobsCreate persists a draft job and its ordered scenes. Generation does
// not start until the generate endpoint is called.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.ProjectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}
	if msg := validateCreate(req); msg != "" {
		a.error(w, http.StatusUnprocessableEntity, "validation_failed", msg)
		return
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Title:     strings.TrimSpace(req.Title),
		Status:    domain.JobStatusDraft,
		Config: domain.JobConfig{
			Language:     req.Language,
			VoiceID:      req.VoiceID,
			MusicStyle:   req.MusicStyle,
			MusicEnabled: req.MusicEnabled,
			Narration:    req.Narration,
			Width:        req.Width,
			Height:       req.Height,
			FadeSeconds:  req.FadeSeconds,
		},
	}
	scenes := make([]*domain.Scene, len(req.Scenes))
	for i, s := range req.Scenes {
		scenes[i] = &domain.Scene{
			ID:              uuid.NewString(),
			JobID:           job.ID,
			Index:           i,
			ImageURL:        s.ImageURL,
			ImageAssetID:    s.ImageAssetID,
			Prompt:          s.Prompt,
			DurationSeconds: s.DurationSeconds,
			Status:          domain.SceneStatusPending,
		}
	}

	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("jobs: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	if err := a.Scenes.CreateBatch(r.Context(), scenes); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: scene batch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create scenes")
		return
	}

	a.json(w, http.StatusCreated, toJobResponse(job, derefScenes(scenes)))
}

// JobsGenerate dispatches the background pipeline run for a job.
func (a *App) JobsGenerate(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	if job.Status.Terminal() {
		a.error(w, http.StatusConflict, "job_terminal", fmt.Sprintf("job is already %s", job.Status))
		return
	}
	scenes, err := a.Scenes.ListByJob(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	if len(scenes) == 0 {
		a.error(w, http.StatusUnprocessableEntity, "no_scenes", "job has no scenes")
		return
	}

	if err := a.Dispatcher.Dispatch(jobID); err != nil {
		if errors.Is(err, domain.ErrJobInFlight) {
			a.error(w, http.StatusConflict, "in_flight", "generation already running for this job")
			return
		}
		a.jobError(w, jobID, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": jobID, "status": string(domain.JobStatusGenerating)})
}

// JobsGet returns the persisted job. No provider calls happen here; status
// freshness is the pipeline's and the reconciler's responsibility.
func (a *App) JobsGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	scenes, err := a.Scenes.ListByJob(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job, scenes))
}

// JobsList returns jobs for a project, newest first.
func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project_id required")
		return
	}
	jobs, err := a.Jobs.ListByProject(r.Context(), projectID)
	if err != nil {
		a.Logger.Error().Err(err).Str("project_id", projectID).Msg("jobs: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list jobs")
		return
	}
	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i], nil))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ScenesStatus returns persisted per-scene statuses plus the aggregate
// counts and total provider cost billed so far.
func (a *App) ScenesStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	scenes, err := a.Scenes.ListByJob(r.Context(), jobID)
	if err != nil {
		a.jobError(w, jobID, err)
		return
	}
	cost, err := a.Usage.TotalByJob(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: usage total failed")
		cost = 0
	}

	items := make([]sceneResponse, 0, len(scenes))
	for _, s := range scenes {
		items = append(items, toSceneResponse(s))
	}
	a.json(w, http.StatusOK, map[string]any{
		"job_id":     jobID,
		"job_status": job.Status,
		"aggregate":  domain.Aggregate(scenes),
		"scenes":     items,
		"total_cost": cost,
	})
}

func (a *App) jobError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: request failed")
	a.error(w, http.StatusInternalServerError, "internal", "request failed")
}

func validateCreate(req createJobRequest) string {
	if len(req.Scenes) == 0 {
		return "at least one scene required"
	}
	if len(req.Scenes) > maxScenesPerJob {
		return fmt.Sprintf("at most %d scenes per job", maxScenesPerJob)
	}
	if !mediagen.SupportedResolution(req.Width, req.Height) {
		return fmt.Sprintf("unsupported resolution %dx%d", req.Width, req.Height)
	}
	if req.FadeSeconds < 0 {
		return "fade_seconds must not be negative"
	}
	for i, s := range req.Scenes {
		if strings.TrimSpace(s.Prompt) == "" {
			return fmt.Sprintf("scene %d: prompt required", i)
		}
		if s.ImageURL == "" && s.ImageAssetID == "" {
			return fmt.Sprintf("scene %d: image_url or image_asset_id required", i)
		}
		if s.DurationSeconds < mediagen.MinDurationSeconds || s.DurationSeconds > mediagen.MaxDurationSeconds {
			return fmt.Sprintf("scene %d: duration %.2fs outside [%.1f, %.1f]",
				i, s.DurationSeconds, mediagen.MinDurationSeconds, mediagen.MaxDurationSeconds)
		}
		if req.FadeSeconds > 0 && s.DurationSeconds <= req.FadeSeconds {
			return fmt.Sprintf("scene %d: duration must exceed fade_seconds %.2f", i, req.FadeSeconds)
		}
	}
	return ""
}

func toJobResponse(job *domain.Job, scenes []domain.Scene) jobResponse {
	resp := jobResponse{
		ID:           job.ID,
		ProjectID:    job.ProjectID,
		Title:        job.Title,
		Status:       string(job.Status),
		Config:       job.Config,
		OutputURL:    job.OutputURL,
		ErrorMessage: job.ErrorMessage,
	}
	for _, s := range scenes {
		resp.Scenes = append(resp.Scenes, toSceneResponse(s))
	}
	return resp
}

func toSceneResponse(s domain.Scene) sceneResponse {
	return sceneResponse{
		ID:              s.ID,
		Index:           s.Index,
		Status:          string(s.Status),
		Prompt:          s.Prompt,
		DurationSeconds: s.DurationSeconds,
		VideoURL:        s.VideoURL,
		ErrorMessage:    s.ErrorMessage,
	}
}

func derefScenes(scenes []*domain.Scene) []domain.Scene {
	out := make([]domain.Scene, len(scenes))
	for i, s := range scenes {
		out[i] = *s
	}
	return out
}
