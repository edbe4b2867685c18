package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/eveiljuice/multi-model-ai-assistant-sub001/internal/models"
)

// AgentRepository reads the agent catalog. Lookups go through the LRU
// cache; the catalog changes rarely and a 5 minute staleness window is
// acceptable.
type AgentRepository struct {
	db *DB
}

func NewAgentRepository(db *DB) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `id, slug, name, system_prompt, provider, model, credit_cost, enabled, created_at, updated_at`

// GetByID fetches one agent, cached.
func (r *AgentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	cacheKey := "agent:" + id.String()
	if cached, found := r.db.agentCache.Get(cacheKey); found {
		agent := cached.(models.Agent)
		return &agent, nil
	}

	var agent models.Agent
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id = $1`, agentColumns)
	if err := r.db.conn.GetContext(ctx, &agent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent %s: %w", id, err)
	}

	r.db.agentCache.Set(cacheKey, agent)
	return &agent, nil
}

// GetBySlug fetches one agent by its URL-friendly identifier.
func (r *AgentRepository) GetBySlug(ctx context.Context, slug string) (*models.Agent, error) {
	cacheKey := "agent:slug:" + slug
	if cached, found := r.db.agentCache.Get(cacheKey); found {
		agent := cached.(models.Agent)
		return &agent, nil
	}

	var agent models.Agent
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE slug = $1`, agentColumns)
	if err := r.db.conn.GetContext(ctx, &agent, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent by slug %s: %w", slug, err)
	}

	r.db.agentCache.Set(cacheKey, agent)
	return &agent, nil
}

// List returns the enabled catalog in display order.
func (r *AgentRepository) List(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE enabled = true ORDER BY name`, agentColumns)
	if err := r.db.conn.SelectContext(ctx, &agents, query); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// Invalidate drops an agent from the cache after a catalog change.
func (r *AgentRepository) Invalidate(agent *models.Agent) {
	r.db.agentCache.Delete("agent:" + agent.ID.String())
	r.db.agentCache.Delete("agent:slug:" + agent.Slug)
}
