package handlers

import (
	"encoding/json"
	"net/http"

	"lumenworks/internal/aps"
	"lumenworks/internal/convert"
	"lumenworks/internal/drawing"
	"lumenworks/internal/infra"
	"lumenworks/internal/progress"
)

// App is the handler container. Everything it holds is constructed once in
// main and injected, including the process-wide progress store.
type App struct {
	Cfg       *infra.Config
	Logger    infra.Logger
	Converter *convert.Converter
	Stager    *aps.Client
	Progress  *progress.Store
	Pipeline  *drawing.Pipeline
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}
