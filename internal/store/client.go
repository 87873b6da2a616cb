package store

import (
	"fmt"

	"github.com/ecostadev/wamcp/internal/config"
	"github.com/supabase-community/postgrest-go"
)

// Client wraps a PostgREST connection to the hosted message store. All
// queries are scoped to a single channel.
type Client struct {
	pg      *postgrest.Client
	channel string
}

// New creates a store client for the given Supabase project. The service key
// authenticates every request.
func New(cfg *config.Config) (*Client, error) {
	headers := map[string]string{
		"apikey":        cfg.SupabaseKey,
		"Authorization": "Bearer " + cfg.SupabaseKey,
	}
	pg := postgrest.NewClient(cfg.SupabaseURL+"/rest/v1", "public", headers)
	if pg.ClientError != nil {
		return nil, fmt.Errorf("postgrest client: %w", pg.ClientError)
	}
	return &Client{pg: pg, channel: cfg.Channel}, nil
}
