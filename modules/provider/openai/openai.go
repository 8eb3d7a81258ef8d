// Package openai implements the provider.openai module, a Generator backed
// by the OpenAI Chat Completions API through go-openai.
package openai

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	goopenai "github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/provider"
)

// ServiceName is the AppContext service key under which the provider
// registers itself.
const ServiceName = "provider.openai"

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface guards.
var (
	_ provider.Provider = (*Provider)(nil)
	_ core.Module       = (*Provider)(nil)
	_ core.Configurable = (*Provider)(nil)
	_ core.Provisioner  = (*Provider)(nil)
	_ core.Validator    = (*Provider)(nil)
)

// Provider is the provider.openai module.
type Provider struct {
	config Config
	apiKey string
	logger *slog.Logger
	client *goopenai.Client
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.openai",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return err
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "provider.openai")

	p.apiKey = p.config.APIKey
	if p.apiKey == "" {
		p.apiKey = os.Getenv(p.config.APIKeyEnv)
	}

	// http.Client.Timeout would cut long-lived streams, so only the wait
	// for response headers is bounded; cancellation goes through ctx.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = p.config.parsedTimeout()
	p.client = newClient(p.apiKey, p.config.BaseURL, &http.Client{Transport: transport})

	ctx.RegisterService(ServiceName, p)
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	if p.apiKey == "" {
		return errors.New("provider.openai: api_key is required (config or " + p.config.APIKeyEnv + ")")
	}
	if p.config.Model == "" {
		return errors.New("provider.openai: model is required")
	}
	if err := p.config.validateTimeout(); err != nil {
		return err
	}
	return nil
}

func newClient(apiKey, baseURL string, httpClient *http.Client) *goopenai.Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return goopenai.NewClientWithConfig(cfg)
}
