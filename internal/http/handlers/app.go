package handlers

import (
	"encoding/json"
	"net/http"

	"promoforge/internal/domain"
	"promoforge/internal/infra"
)

// Dispatcher schedules background pipeline runs. Implemented by
// pipeline.Manager.
type Dispatcher interface {
	Dispatch(jobID string) error
	InFlight(jobID string) bool
}

type App struct {
	Jobs       domain.JobRepository
	Scenes     domain.SceneRepository
	Usage      domain.UsageRepository
	Dispatcher Dispatcher
	Logger     infra.Logger
}

func NewApp(jobs domain.JobRepository, scenes domain.SceneRepository, usage domain.UsageRepository, dispatcher Dispatcher, logger infra.Logger) *App {
	return &App{
		Jobs:       jobs,
		Scenes:     scenes,
		Usage:      usage,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
