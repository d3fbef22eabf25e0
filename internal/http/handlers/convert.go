package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"lumenworks/internal/convert"
)

type convertRequest struct {
	SourceURL  string `json:"source_url,omitempty"`
	DataBase64 string `json:"data_base64,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	DPI        int    `json:"dpi,omitempty"`
}

// ConvertImage normalizes one piece of artwork synchronously.
func (a *App) ConvertImage(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	var data []byte
	if req.DataBase64 != "" {
		decoded, err := convert.DecodeBase64(req.DataBase64)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "data_base64 is not valid base64")
			return
		}
		data = decoded
	}
	if len(data) == 0 && req.SourceURL == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "source_url or data_base64 required")
		return
	}

	result, err := a.Converter.Convert(r.Context(), convert.Request{
		Data:      data,
		SourceURL: req.SourceURL,
		Width:     req.Width,
		Height:    req.Height,
		DPI:       req.DPI,
	})
	if err != nil {
		a.convertError(w, err)
		return
	}
	a.json(w, http.StatusOK, result)
}

type batchConvertRequest struct {
	Entries []convert.BatchEntry `json:"entries"`
	Width   int                  `json:"width,omitempty"`
	Height  int                  `json:"height,omitempty"`
	DPI     int                  `json:"dpi,omitempty"`
}

type batchEntryResponse struct {
	Image        *convert.Result `json:"image,omitempty"`
	ImageError   string          `json:"image_error,omitempty"`
	Drawing      *convert.Result `json:"drawing,omitempty"`
	DrawingError string          `json:"drawing_error,omitempty"`
}

// ConvertBatch converts every entry's present URLs independently; one
// entry's failure never blocks another.
func (a *App) ConvertBatch(w http.ResponseWriter, r *http.Request) {
	var req batchConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Entries) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "entries required")
		return
	}

	results := a.Converter.ConvertBatch(r.Context(), req.Entries, convert.Request{
		Width:  req.Width,
		Height: req.Height,
		DPI:    req.DPI,
	})

	out := make([]batchEntryResponse, len(results))
	for i, res := range results {
		out[i].Image = res.Image
		out[i].Drawing = res.Drawing
		if res.ImageErr != nil {
			out[i].ImageError = res.ImageErr.Error()
		}
		if res.DrawingErr != nil {
			out[i].DrawingError = res.DrawingErr.Error()
		}
	}
	a.json(w, http.StatusOK, map[string]any{"results": out})
}

// convertError maps the converter's error taxonomy onto status codes, keeping
// the specific reason (font names, limits) in the response body.
func (a *App) convertError(w http.ResponseWriter, err error) {
	var fontErr *convert.UnsupportedFontError
	switch {
	case errors.As(err, &fontErr):
		a.error(w, http.StatusUnprocessableEntity, "unsupported_fonts", err.Error())
	case errors.Is(err, convert.ErrNotFound):
		a.error(w, http.StatusNotFound, "source_not_found", err.Error())
	case errors.Is(err, convert.ErrTooLarge):
		a.error(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
	case errors.Is(err, convert.ErrFetchTimeout):
		a.error(w, http.StatusGatewayTimeout, "fetch_timeout", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("conversion failed")
		a.error(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
