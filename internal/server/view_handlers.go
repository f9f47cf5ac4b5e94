package server

import (
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/deck"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type stageRequestPayload struct {
	Category   string   `json:"category"`
	ID         int      `json:"id"`
	Name       string   `json:"name"`
	URL        string   `json:"url"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Rarity     string   `json:"rarity"`
	SetName    string   `json:"set_name"`
	ImageURL   string   `json:"image_url"`
	EnergyType string   `json:"energy_type"`
}

type viewResponsePayload struct {
	ViewID string        `json:"view_id"`
	View   deck.Snapshot `json:"view"`
}

func (h *httpHandler) handleOpenView(c *gin.Context) {
	session, accountKey := requestSession(c)

	viewID, err := h.idProvider.NewID()
	if err != nil {
		h.logger.Error("failed to issue view id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	controller, err := deck.NewController(deck.ControllerConfig{
		DeckService: h.deckService,
		Validator:   h.validator,
		Cache:       h.projectionCache,
		Listener:    changeListener(h.realtime, h.clock, viewID, accountKey),
		Logger:      h.logger.With(zap.String("view_id", viewID)),
	})
	if err != nil {
		h.writeDeckError(c, err)
		return
	}
	if err := controller.Load(c.Request.Context(), session); err != nil {
		h.writeDeckError(c, err)
		return
	}

	h.views.add(&viewSession{id: viewID, accountKey: accountKey, controller: controller})
	h.logger.Info("view opened", zap.String("view_id", viewID), zap.String("session", session.Fingerprint()))
	c.JSON(http.StatusCreated, viewResponsePayload{ViewID: viewID, View: controller.Snapshot()})
}

func (h *httpHandler) handleGetView(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewResponsePayload{ViewID: view.id, View: view.controller.Snapshot()})
}

func (h *httpHandler) handleCloseView(c *gin.Context) {
	_, accountKey := requestSession(c)
	if !h.views.remove(c.Param("id"), accountKey) {
		c.JSON(http.StatusNotFound, gin.H{"error": "view_not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleStageCard(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}
	var request stageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	category, err := cards.ParseCategory(request.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card"})
		return
	}

	session, _ := requestSession(c)
	staged, err := view.controller.Stage(session, cards.Card{
		Category:   category,
		ID:         request.ID,
		Name:       request.Name,
		Ref:        request.URL,
		Strengths:  request.Strengths,
		Weaknesses: request.Weaknesses,
		Rarity:     request.Rarity,
		SetName:    request.SetName,
		ImageURL:   request.ImageURL,
		EnergyType: request.EnergyType,
	})
	if err != nil {
		h.writeDeckError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged": staged})
}

func (h *httpHandler) handleStageRecommendation(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}
	var item deck.RecommendationItem
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	session, _ := requestSession(c)
	staged, err := view.controller.StageRecommendation(c.Request.Context(), session, item)
	if err != nil {
		h.writeDeckError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"staged": staged})
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}
	session, _ := requestSession(c)
	result, err := view.controller.Submit(c.Request.Context(), session)
	if err != nil {
		h.writeDeckError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *httpHandler) handleDeleteCard(c *gin.Context) {
	view, ok := h.lookupView(c)
	if !ok {
		return
	}
	category, err := cards.ParseCategory(c.Param("category"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card"})
		return
	}
	cardID, err := strconv.Atoi(c.Param("card_id"))
	if err != nil || cardID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_card"})
		return
	}

	session, _ := requestSession(c)
	remaining, err := view.controller.Delete(c.Request.Context(), session, category, cardID)
	if err != nil {
		h.writeDeckError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deck": remaining})
}
