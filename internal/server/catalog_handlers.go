package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/pokedeck/internal/cards"
	"github.com/MarcoPoloResearchLab/pokedeck/internal/catalog"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) handleListTypes(c *gin.Context) {
	types, err := h.catalog.ListTypes(c.Request.Context())
	if err != nil {
		h.writeCatalogError(c, "types", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"types": types})
}

func (h *httpHandler) handleListCreatures(c *gin.Context) {
	creatures, err := h.catalog.ListCreatures(c.Request.Context(), c.Query("type"))
	if err != nil {
		h.writeCatalogError(c, "creatures", err)
		return
	}
	filter := cards.Filter{Search: c.Query("search")}
	c.JSON(http.StatusOK, gin.H{"creatures": filter.Apply(creatures)})
}

func (h *httpHandler) handleCreatureDetail(c *gin.Context) {
	detail, err := h.catalog.GetCreatureDetail(c.Request.Context(), c.Query("ref"))
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidReference) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_reference"})
			return
		}
		h.writeCatalogError(c, "creature_detail", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *httpHandler) handleListTrainers(c *gin.Context) {
	trainers, err := h.catalog.ListTrainers(c.Request.Context())
	if err != nil {
		h.writeCatalogError(c, "trainers", err)
		return
	}
	filter := cards.Filter{Search: c.Query("search"), Rarity: c.Query("rarity")}
	c.JSON(http.StatusOK, gin.H{
		"trainers": filter.Apply(trainers),
		"rarities": cards.DistinctRarities(trainers),
	})
}

func (h *httpHandler) handleListEnergy(c *gin.Context) {
	energy, err := h.catalog.ListEnergy(c.Request.Context())
	if err != nil {
		h.writeCatalogError(c, "energy", err)
		return
	}
	filter := cards.Filter{Search: c.Query("search"), EnergyType: c.Query("energy_type")}
	c.JSON(http.StatusOK, gin.H{
		"energy":       filter.Apply(energy),
		"energy_types": cards.DistinctEnergyTypes(energy),
	})
}

func (h *httpHandler) writeCatalogError(c *gin.Context, kind string, err error) {
	h.logger.Warn("catalog request failed", zap.String("kind", kind), zap.Error(err))
	c.JSON(http.StatusBadGateway, gin.H{"error": "catalog_unavailable"})
}
