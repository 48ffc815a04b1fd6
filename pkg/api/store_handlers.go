package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rzzdr/options-risk-engine/pkg/models"
	"github.com/rzzdr/options-risk-engine/pkg/utils/errors"
)

// ListStrategiesHandler lists saved strategies, filtered by ?underlying=
func (h *Handlers) ListStrategiesHandler(c *gin.Context) {
	strategies, err := h.deps.Store.Strategies(c.Request.Context(), c.Query("underlying"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

// SaveStrategyHandler creates or replaces a strategy
func (h *Handlers) SaveStrategyHandler(c *gin.Context) {
	var strategy models.Strategy
	if err := bind(c, &strategy); err != nil {
		h.fail(c, err)
		return
	}
	if err := validateLegs(strategy.Legs); err != nil {
		h.fail(c, err)
		return
	}

	saved, err := h.deps.Store.SaveStrategy(c.Request.Context(), &strategy)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DeleteStrategyHandler deletes ?underlying=&name=
func (h *Handlers) DeleteStrategyHandler(c *gin.Context) {
	if err := h.deps.Store.DeleteStrategy(c.Request.Context(), c.Query("underlying"), c.Query("name")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type strategyMetaRequest struct {
	Underlying string `json:"underlying"`
	Name       string `json:"name"`
	models.StrategyMeta
}

// PatchStrategyMetaHandler changes the type or creator of a strategy
func (h *Handlers) PatchStrategyMetaHandler(c *gin.Context) {
	var req strategyMetaRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	strategy, err := h.deps.Store.PatchStrategyMeta(c.Request.Context(), req.Underlying, req.Name, req.StrategyMeta)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, strategy)
}

// ListPositionsHandler lists positions, filtered by ?underlying=
func (h *Handlers) ListPositionsHandler(c *gin.Context) {
	positions, err := h.deps.Store.Positions(c.Request.Context(), c.Query("underlying"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// CreatePositionHandler stores a new position
func (h *Handlers) CreatePositionHandler(c *gin.Context) {
	var position models.Position
	if err := bind(c, &position); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	created, err := h.deps.Store.CreatePosition(ctx, &position)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.publish(ctx, models.PositionCreated, created)
	c.JSON(http.StatusCreated, created)
}

// UpdatePositionHandler applies a partial update to a position
func (h *Handlers) UpdatePositionHandler(c *gin.Context) {
	var patch models.PositionPatch
	if err := bind(c, &patch); err != nil {
		h.fail(c, err)
		return
	}
	ctx := c.Request.Context()

	updated, err := h.deps.Store.UpdatePosition(ctx, c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.publish(ctx, models.PositionUpdated, updated)
	c.JSON(http.StatusOK, updated)
}

// DeletePositionHandler removes a position
func (h *Handlers) DeletePositionHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	deleted, err := h.deps.Store.Position(ctx, id)
	switch {
	case errors.IsType(err, errors.ErrorTypeNotFound):
		deleted = nil
	case err != nil:
		h.fail(c, err)
		return
	}

	if err := h.deps.Store.DeletePosition(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	h.publish(ctx, models.PositionDeleted, deleted)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GetStrategyNoteHandler returns the note of ?underlying=&name=
func (h *Handlers) GetStrategyNoteHandler(c *gin.Context) {
	note, err := h.deps.Store.StrategyNote(c.Request.Context(), c.Query("underlying"), c.Query("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

type noteRequest struct {
	Underlying string `json:"underlying"`
	Name       string `json:"name"`
	Content    string `json:"content"`
}

// SetStrategyNoteHandler writes the note of a strategy
func (h *Handlers) SetStrategyNoteHandler(c *gin.Context) {
	var req noteRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	note, err := h.deps.Store.SetStrategyNote(c.Request.Context(), req.Underlying, req.Name, req.Content)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// GetPositionNoteHandler returns the note of a position
func (h *Handlers) GetPositionNoteHandler(c *gin.Context) {
	note, err := h.deps.Store.PositionNote(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// SetPositionNoteHandler writes the note of a position. underlying and name
// identify the strategy whose note seeds an empty first write.
func (h *Handlers) SetPositionNoteHandler(c *gin.Context) {
	var req noteRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	note, err := h.deps.Store.SetPositionNote(c.Request.Context(), c.Param("id"), req.Content, req.Underlying, req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}
