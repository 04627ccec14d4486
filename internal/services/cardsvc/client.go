// Package cardsvc talks to the card backend: card create and patch, plus deck
// listing.
package cardsvc

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"captionminer/internal/cards"
	"captionminer/internal/config"
	"captionminer/internal/services"
	"captionminer/internal/services/apiclient"
)

// Service is the card backend contract.
type Service interface {
	Create(ctx context.Context, draft cards.DraftCard) (cards.Card, error)
	Update(ctx context.Context, id string, update cards.Update) (cards.Card, error)
	Decks(ctx context.Context) ([]cards.Deck, error)
}

// Client is the HTTP implementation of Service.
type Client struct {
	api *apiclient.Client
}

// NewClient builds a client against the backend at cfg.BaseURL.
func NewClient(cfg apiclient.Config, tokens apiclient.TokenSource, opts ...apiclient.Option) *Client {
	return &Client{api: apiclient.New("cardsvc", cfg, tokens, opts...)}
}

// NewFromConfig builds a client from application config.
func NewFromConfig(cfg *config.Config, tokens apiclient.TokenSource, opts ...apiclient.Option) *Client {
	return NewClient(apiclient.Config{BaseURL: cfg.API.BaseURL, TimeoutSeconds: cfg.API.TimeoutSeconds}, tokens, opts...)
}

type cardEnvelope struct {
	Card *cards.Card `json:"card"`
}

type decksEnvelope struct {
	Decks []cards.Deck `json:"decks"`
}

// Create posts a draft and returns the persisted card.
func (c *Client) Create(ctx context.Context, draft cards.DraftCard) (cards.Card, error) {
	if strings.TrimSpace(draft.DeckID) == "" {
		return cards.Card{}, services.Wrap(services.ErrValidation, "cardsvc", "create", "deck id required", nil)
	}
	if draft.Tags == nil {
		draft.Tags = []string{}
	}
	var out cardEnvelope
	if err := c.api.Do(ctx, http.MethodPost, "/cards", draft, &out); err != nil {
		return cards.Card{}, err
	}
	if out.Card == nil {
		return cards.Card{}, services.Wrap(services.ErrTransient, "cardsvc", "create", "response missing card", nil)
	}
	return *out.Card, nil
}

// Update patches mutable fields of a remote card.
func (c *Client) Update(ctx context.Context, id string, update cards.Update) (cards.Card, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return cards.Card{}, services.Wrap(services.ErrValidation, "cardsvc", "update", "card id required", nil)
	}
	var out cardEnvelope
	if err := c.api.Do(ctx, http.MethodPatch, "/cards/"+url.PathEscape(id), update, &out); err != nil {
		return cards.Card{}, err
	}
	if out.Card == nil {
		return cards.Card{}, services.Wrap(services.ErrTransient, "cardsvc", "update", "response missing card", nil)
	}
	return *out.Card, nil
}

// Decks lists the user's decks.
func (c *Client) Decks(ctx context.Context) ([]cards.Deck, error) {
	var out decksEnvelope
	if err := c.api.Do(ctx, http.MethodGet, "/decks", nil, &out); err != nil {
		return nil, err
	}
	return out.Decks, nil
}
