package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pencroft/chat-web-ui/internal/models"
)

type settingsPageData struct {
	Memories []models.Memory
	Models   []models.ModelConfig
}

// HandleSettings renders the settings page with the stored user facts and model configurations.
func (m Main) HandleSettings(w http.ResponseWriter, r *http.Request) {
	memories, err := m.backend.Memories(r.Context())
	if err != nil {
		m.logger.Error("Failed to get memories", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	configs, err := m.backend.Models(r.Context())
	if err != nil {
		m.logger.Error("Failed to get model configs", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := settingsPageData{
		Memories: memories,
		Models:   configs,
	}
	if err := m.templates.ExecuteTemplate(w, "settings.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleMemories processes the settings form actions for stored user facts: add, update, toggle,
// and delete.
func (m Main) HandleMemories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action := r.FormValue("action"); action {
	case "add":
		_, err = m.backend.AddMemory(r.Context(), r.FormValue("content"))
	case "update":
		content := r.FormValue("content")
		_, err = m.backend.UpdateMemory(r.Context(), r.FormValue("memory_id"), &content, nil)
	case "toggle":
		enabled, parseErr := strconv.ParseBool(r.FormValue("enabled"))
		if parseErr != nil {
			http.Error(w, "enabled must be a boolean", http.StatusBadRequest)
			return
		}
		_, err = m.backend.UpdateMemory(r.Context(), r.FormValue("memory_id"), nil, &enabled)
	case "delete":
		err = m.backend.DeleteMemory(r.Context(), r.FormValue("memory_id"))
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		m.logger.Error("Memory action failed", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}

// HandleModels processes the settings form actions for model configurations: save, delete, and
// set-default.
func (m Main) HandleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch action := r.FormValue("action"); action {
	case "save":
		maxTokens, _ := strconv.Atoi(r.FormValue("max_tokens"))
		temperature, _ := strconv.ParseFloat(r.FormValue("temperature"), 64)
		_, err = m.backend.SaveModel(r.Context(), models.ModelConfig{
			ID:          r.FormValue("config_id"),
			Name:        r.FormValue("name"),
			ModelID:     r.FormValue("model_id"),
			MaxTokens:   maxTokens,
			Temperature: temperature,
			Default:     r.FormValue("is_default") == "on",
		})
	case "delete":
		err = m.backend.DeleteModel(r.Context(), r.FormValue("config_id"))
	case "set-default":
		err = m.backend.SetDefaultModel(r.Context(), r.FormValue("config_id"))
	default:
		http.Error(w, "Unknown action", http.StatusBadRequest)
		return
	}

	if err != nil {
		m.logger.Error("Model action failed", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/settings", http.StatusSeeOther)
}
