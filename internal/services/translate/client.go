// Package translate calls the backend's translation endpoint.
package translate

import (
	"context"
	"net/http"
	"strings"

	"captionminer/internal/config"
	"captionminer/internal/services"
	"captionminer/internal/services/apiclient"
)

// Translator translates text into the configured target language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Client posts to /translate.
type Client struct {
	api        *apiclient.Client
	sourceLang string
	targetLang string
}

// NewClient builds a translator for the given language pair.
func NewClient(cfg apiclient.Config, sourceLang, targetLang string, tokens apiclient.TokenSource, opts ...apiclient.Option) *Client {
	return &Client{
		api:        apiclient.New("translate", cfg, tokens, opts...),
		sourceLang: sourceLang,
		targetLang: targetLang,
	}
}

// NewFromConfig builds a translator from application config.
func NewFromConfig(cfg *config.Config, tokens apiclient.TokenSource, opts ...apiclient.Option) *Client {
	return NewClient(
		apiclient.Config{BaseURL: cfg.API.BaseURL, TimeoutSeconds: cfg.API.TimeoutSeconds},
		cfg.Translation.SourceLang,
		cfg.Translation.TargetLang,
		tokens,
		opts...,
	)
}

type request struct {
	Text       string `json:"text"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
}

type response struct {
	Translation string `json:"translation"`
}

// Translate returns the translation of text.
func (c *Client) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "translate", "text required", nil)
	}
	var out response
	err := c.api.Do(ctx, http.MethodPost, "/translate", request{
		Text:       text,
		SourceLang: c.sourceLang,
		TargetLang: c.targetLang,
	}, &out)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Translation), nil
}
