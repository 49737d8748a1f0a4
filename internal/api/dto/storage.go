package dto

import "github.com/semmidev/snapkeep/internal/domain"

type AuthorizeResponse struct {
	URL string `json:"url"`
}

type ExchangeRequest struct {
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirectUri"`
}

type ConnectionListResponse struct {
	Items []domain.Connection `json:"items"`
}
