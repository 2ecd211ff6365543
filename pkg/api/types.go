package api

import (
	"context"
	"time"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/platinummonkey/stager/pkg/service"
	"github.com/platinummonkey/stager/pkg/tasks"
)

// StagingService is the part of service.Service the API exposes
type StagingService interface {
	Submit(ctx context.Context, req service.Request) (*tasks.Task, error)
	Get(ctx context.Context, id string) (*tasks.Task, error)
	List(ctx context.Context, limit int) ([]*tasks.Task, error)
	Plan(desc app.Descriptor) (*plugins.PluginSet, error)
	Plugins() []plugins.Info
	DropletURL(ctx context.Context, task *tasks.Task, ttl time.Duration) (string, error)
}

// ListTasksResponse is the body of GET /api/v1/stagings
type ListTasksResponse struct {
	Tasks []*tasks.Task `json:"tasks"`
	Count int           `json:"count"`
}

// ListPluginsResponse is the body of GET /api/v1/plugins
type ListPluginsResponse struct {
	Plugins []plugins.Info `json:"plugins"`
	Count   int            `json:"count"`
}

// PlanResponse is the body of a successful POST /api/v1/plans
type PlanResponse struct {
	Framework string   `json:"framework"`
	Features  []string `json:"features"`
	Order     []string `json:"order"`
}

// DropletResponse is the body of GET /api/v1/stagings/{id}/droplet
type DropletResponse struct {
	Key       string    `json:"key"`
	Sha256    string    `json:"sha256"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
