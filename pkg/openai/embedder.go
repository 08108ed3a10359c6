// Package openai embeds text through any OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/WessleyAI/service-catalog/pkg/embed"
)

// Config selects the endpoint and model.
type Config struct {
	BaseURL string
	Token   string
	Model   string
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("openai: base url is required")
	}
	if c.Model == "" {
		return errors.New("openai: embedding model is required")
	}
	return nil
}

// Embedder implements embed.Embedder on top of langchaingo.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewEmbedder builds an embedder for cfg. An empty token is sent as "none"
// so local OpenAI-compatible servers without auth work.
func NewEmbedder(cfg Config, logger *slog.Logger) (*Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	token := cfg.Token
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(statusDoer{client: &http.Client{Timeout: 60 * time.Second}}),
	)
	if err != nil {
		return nil, err
	}
	// Text is embedded as given; queries are normalized by the caller.
	emb, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{embedder: emb, logger: logger.With("component", "openai-embedder")}, nil
}

// Embed returns the embedding of a single text. An empty provider answer is
// returned as an empty slice.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding", "length", len(text))

	st := &callStatus{}
	vecs, err := e.embedder.EmbedDocuments(context.WithValue(ctx, callKey{}, st), []string{text})
	if err != nil {
		e.logger.Error("failed to generate embedding", "err", err, "unavailable", st.unavailable)
		if st.unavailable {
			err = fmt.Errorf("%w: %w", embed.ErrUnavailable, err)
		}
		return nil, err
	}
	if len(vecs) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vecs[0], nil
}

type callKey struct{}

type callStatus struct{ unavailable bool }

// statusDoer notes on the request's callStatus whether the round trip failed
// in transport or with an outage status, which the client library's errors
// do not expose.
type statusDoer struct{ client *http.Client }

func (d statusDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.client.Do(req)
	if st, ok := req.Context().Value(callKey{}).(*callStatus); ok {
		st.unavailable = err != nil || embed.UnavailableStatus(resp.StatusCode)
	}
	return resp, err
}
