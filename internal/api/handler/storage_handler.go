package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/semmidev/snapkeep/internal/api/dto"
	"github.com/semmidev/snapkeep/internal/domain"
)

// StorageHandler exposes provider connection state and the OAuth2 flow of
// providers that need one.
type StorageHandler struct {
	providers  []string
	connectors map[string]domain.Connector
}

func NewStorageHandler(providers []string, connectors map[string]domain.Connector) *StorageHandler {
	return &StorageHandler{
		providers:  providers,
		connectors: connectors,
	}
}

// ListConnections handles GET /storage
func (h *StorageHandler) ListConnections(c *gin.Context) {
	response := dto.ConnectionListResponse{Items: make([]domain.Connection, 0, len(h.providers))}
	for _, provider := range h.providers {
		response.Items = append(response.Items, h.status(provider))
	}
	c.JSON(http.StatusOK, response)
}

// GetConnection handles GET /storage/:provider
func (h *StorageHandler) GetConnection(c *gin.Context) {
	provider := c.Param("provider")
	if !h.known(provider) {
		respondError(c, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider))
		return
	}
	c.JSON(http.StatusOK, h.status(provider))
}

// Authorize handles GET /storage/:provider/authorize
func (h *StorageHandler) Authorize(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	url, err := connector.AuthorizationURL(c.Query("redirect_uri"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AuthorizeResponse{URL: url})
}

// Exchange handles POST /storage/:provider/exchange
func (h *StorageHandler) Exchange(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	var req dto.ExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	conn, err := connector.ExchangeCode(c.Request.Context(), req.Code, req.RedirectURI)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, conn)
}

// Disconnect handles POST /storage/:provider/disconnect
func (h *StorageHandler) Disconnect(c *gin.Context) {
	connector, ok := h.connector(c)
	if !ok {
		return
	}

	if err := connector.Disconnect(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, connector.Status())
}

func (h *StorageHandler) connector(c *gin.Context) (domain.Connector, bool) {
	provider := c.Param("provider")
	if connector, ok := h.connectors[provider]; ok {
		return connector, true
	}
	if h.known(provider) {
		badRequest(c, fmt.Sprintf("storage provider %s does not use authorization", provider))
		return nil, false
	}
	respondError(c, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, provider))
	return nil, false
}

func (h *StorageHandler) known(provider string) bool {
	for _, p := range h.providers {
		if p == provider {
			return true
		}
	}
	_, ok := h.connectors[provider]
	return ok
}

// status reports providers without an OAuth2 flow as always connected.
func (h *StorageHandler) status(provider string) domain.Connection {
	if connector, ok := h.connectors[provider]; ok {
		return connector.Status()
	}
	return domain.Connection{Provider: provider, State: domain.StateConnected}
}
