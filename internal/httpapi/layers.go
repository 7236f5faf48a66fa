package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"neomap/core-go/internal/controller"
	"neomap/core-go/internal/layer"
)

type layerCreate struct {
	Name string `json:"name,omitempty"`
}

// layerPatch mirrors the stored layer field names. layerType is changed via
// its own endpoint because leaving cypher needs confirmation.
type layerPatch struct {
	Name                        *string          `json:"name,omitempty"`
	Rendering                   *layer.Rendering `json:"rendering,omitempty"`
	NodeLabels                  *[]layer.Option  `json:"nodeLabel,omitempty"`
	RelationshipLabels          *[]layer.Option  `json:"relationshipLabel,omitempty"`
	LatitudeProperty            *layer.Option    `json:"latitudeProperty,omitempty"`
	LongitudeProperty           *layer.Option    `json:"longitudeProperty,omitempty"`
	PointProperty               *layer.Option    `json:"pointProperty,omitempty"`
	TooltipProperty             *layer.Option    `json:"tooltipProperty,omitempty"`
	RelationshipTooltipProperty *layer.Option    `json:"relationshipTooltipProperty,omitempty"`
	SpatialLayer                *layer.Option    `json:"spatialLayer,omitempty"`
	Cypher                      *string          `json:"cypher,omitempty"`
	Limit                       patchLimit       `json:"limit"`
	Color                       *layer.Color     `json:"color,omitempty"`
	RelationshipColor           *layer.Color     `json:"relationshipColor,omitempty"`
	Radius                      *float64         `json:"radius,omitempty"`
}

func (p layerPatch) settings() controller.Settings {
	return controller.Settings{
		Name:                        p.Name,
		Rendering:                   p.Rendering,
		NodeLabels:                  p.NodeLabels,
		RelationshipLabels:          p.RelationshipLabels,
		LatitudeProperty:            p.LatitudeProperty,
		LongitudeProperty:           p.LongitudeProperty,
		PointProperty:               p.PointProperty,
		TooltipProperty:             p.TooltipProperty,
		RelationshipTooltipProperty: p.RelationshipTooltipProperty,
		SpatialLayer:                p.SpatialLayer,
		Cypher:                      p.Cypher,
		Limit:                       p.Limit.value(),
		Color:                       p.Color,
		RelationshipColor:           p.RelationshipColor,
		Radius:                      p.Radius,
	}
}

// patchLimit tells an absent limit from an explicit null. Null clears the
// limit, matching what GET returns for an unset one.
type patchLimit struct {
	set   bool
	limit layer.Limit
}

func (p *patchLimit) UnmarshalJSON(b []byte) error {
	p.set = true
	return p.limit.UnmarshalJSON(b)
}

func (p patchLimit) value() *layer.Limit {
	if !p.set {
		return nil
	}
	l := p.limit
	return &l
}

type layerTypeChange struct {
	LayerType layer.Type `json:"layerType"`
	Confirm   bool       `json:"confirm,omitempty"`
}

type nodeLabelsChange struct {
	NodeLabels []layer.Option `json:"nodeLabel"`
}

type catalogRefreshResult struct {
	Catalog layer.Catalog `json:"catalog"`
	Errors  []string      `json:"errors"`
}

// confirmation answers the controller's prompt with the client's decision
// and remembers the prompt so a refusal can be reported back.
type confirmation struct {
	approved bool
	prompt   string
}

func (c *confirmation) Confirm(_ context.Context, prompt string) bool {
	c.prompt = prompt
	return c.approved
}

func (h *Handler) ensureRegistry(w http.ResponseWriter) bool {
	if h.layers == nil {
		h.writeError(w, http.StatusServiceUnavailable, "not_configured", "layer registry not configured", nil)
		return false
	}
	return true
}

func (h *Handler) lookupLayer(w http.ResponseWriter, r *http.Request) (*controller.Controller, bool) {
	if !h.ensureRegistry(w) {
		return nil, false
	}
	key := chi.URLParam(r, "key")
	c, ok := h.layers.Get(key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "layer not found", map[string]any{"key": key})
		return nil, false
	}
	return c, true
}

func (h *Handler) handleListLayers(w http.ResponseWriter, r *http.Request) {
	if !h.ensureRegistry(w) {
		return
	}
	h.writeJSON(w, http.StatusOK, h.layers.List())
}

func (h *Handler) handleCreateLayer(w http.ResponseWriter, r *http.Request) {
	var req layerCreate
	if r.ContentLength != 0 {
		if err := decodeJSONStrict(r, &req); err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
			return
		}
	}
	if !h.ensureRegistry(w) {
		return
	}

	c, err := h.layers.Create(r.Context(), req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("create layer failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to create layer", nil)
		return
	}
	h.writeJSON(w, http.StatusCreated, c.Config())
}

func (h *Handler) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, c.Config())
}

func (h *Handler) handlePatchLayer(w http.ResponseWriter, r *http.Request) {
	var req layerPatch
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.Rendering != nil && !req.Rendering.Valid() {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid rendering", map[string]any{"rendering": string(*req.Rendering)})
		return
	}
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}

	if err := c.Apply(r.Context(), req.settings()); err != nil {
		h.log.Error().Err(err).Str("layer", c.Key()).Msg("update layer settings failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to save layer", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, c.Config())
}

func (h *Handler) handleSetLayerType(w http.ResponseWriter, r *http.Request) {
	var req layerTypeChange
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if !req.LayerType.Valid() {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid layer type", map[string]any{"layerType": string(req.LayerType)})
		return
	}
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}

	confirm := &confirmation{approved: req.Confirm}
	changed, err := c.SetLayerType(r.Context(), req.LayerType, confirm)
	if err != nil {
		h.log.Error().Err(err).Str("layer", c.Key()).Msg("change layer type failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to save layer", nil)
		return
	}
	if !changed && confirm.prompt != "" {
		h.writeError(w, http.StatusConflict, "confirmation_required", confirm.prompt, map[string]any{"layerType": string(req.LayerType)})
		return
	}
	h.writeJSON(w, http.StatusOK, c.Config())
}

func (h *Handler) handleSetNodeLabels(w http.ResponseWriter, r *http.Request) {
	var req nodeLabelsChange
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}

	if err := c.SetNodeLabels(r.Context(), req.NodeLabels); err != nil {
		h.log.Error().Err(err).Str("layer", c.Key()).Msg("set node labels failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to save layer", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, c.Config())
}

func (h *Handler) handlePreviewQuery(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, c.PreviewQuery())
}

func (h *Handler) handleUpdateLayer(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}

	err := c.TriggerUpdate(r.Context())
	if err == nil {
		h.writeJSON(w, http.StatusOK, c.Config())
		return
	}

	var qe *controller.QueryExecutionError
	switch {
	case errors.Is(err, controller.ErrSuperseded):
		h.writeError(w, http.StatusConflict, "superseded", "a newer update for this layer was started", nil)
	case errors.As(err, &qe):
		details := map[string]any{
			"kind":  string(qe.Kind),
			"query": qe.Query,
			"error": qe.Err.Error(),
		}
		if qe.UserAuthored() {
			h.writeError(w, http.StatusUnprocessableEntity, "invalid_query", err.Error(), details)
			return
		}
		h.log.Error().Err(err).Str("layer", c.Key()).Msg("generated query failed")
		h.writeError(w, http.StatusBadGateway, "query_failed", err.Error(), details)
	default:
		h.log.Error().Err(err).Str("layer", c.Key()).Msg("layer update failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to save layer", nil)
	}
}

func (h *Handler) handleRefreshCatalog(w http.ResponseWriter, r *http.Request) {
	c, ok := h.lookupLayer(w, r)
	if !ok {
		return
	}

	if force, _ := strconv.ParseBool(r.URL.Query().Get("force")); force && h.catalog != nil {
		h.catalog.InvalidateCatalog()
	}

	resp := catalogRefreshResult{Errors: []string{}}
	if err := c.RefreshCatalog(r.Context()); err != nil {
		for _, e := range unwrapJoined(err) {
			resp.Errors = append(resp.Errors, e.Error())
		}
	}
	resp.Catalog = c.Config().Catalog
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteLayer(w http.ResponseWriter, r *http.Request) {
	if !h.ensureRegistry(w) {
		return
	}
	key := chi.URLParam(r, "key")
	approved, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))

	confirm := &confirmation{approved: approved}
	deleted, err := h.layers.Delete(r.Context(), key, confirm)
	if err != nil {
		h.log.Error().Err(err).Str("layer", key).Msg("delete layer failed")
		h.writeError(w, http.StatusInternalServerError, "store_error", "failed to delete layer", nil)
		return
	}
	if !deleted {
		h.writeError(w, http.StatusConflict, "confirmation_required", confirm.prompt, map[string]any{"key": key})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
