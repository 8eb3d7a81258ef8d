// Package anthropic implements the provider.anthropic module, a Generator
// backed by the Anthropic Messages API.
package anthropic

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/flemzord/mnemo/internal/core"
	"github.com/flemzord/mnemo/internal/provider"
	"gopkg.in/yaml.v3"
)

// ServiceName is the AppContext service key under which the provider
// registers itself.
const ServiceName = "provider.anthropic"

func init() {
	core.RegisterModule(&Anthropic{})
}

// Interface guards.
var (
	_ core.Module       = (*Anthropic)(nil)
	_ core.Configurable = (*Anthropic)(nil)
	_ core.Provisioner  = (*Anthropic)(nil)
	_ core.Validator    = (*Anthropic)(nil)
	_ provider.Provider = (*Anthropic)(nil)
)

// Anthropic is the provider.anthropic module.
type Anthropic struct {
	config Config
	client *sdkanthropic.Client
	logger *slog.Logger
}

// ModuleInfo implements core.Module.
func (a *Anthropic) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.anthropic",
		New: func() core.Module { return &Anthropic{} },
	}
}

// Configure implements core.Configurable.
func (a *Anthropic) Configure(node *yaml.Node) error {
	if err := node.Decode(&a.config); err != nil {
		return err
	}
	a.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (a *Anthropic) Provision(ctx *core.AppContext) error {
	a.config.defaults()
	a.logger = ctx.Logger
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "provider.anthropic")

	apiKey := a.config.APIKey
	if apiKey == "" {
		if envKey, ok := os.LookupEnv(a.config.APIKeyEnv); ok {
			apiKey = envKey
		}
	}

	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if a.config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(a.config.BaseURL))
	}
	// Bound the connection phase only; streamed bodies may run longer.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = a.config.Timeout
	opts = append(opts,
		option.WithHTTPClient(&http.Client{Transport: transport}),
		// Failover handles retries.
		option.WithMaxRetries(0),
	)

	client := sdkanthropic.NewClient(opts...)
	a.client = &client

	ctx.RegisterService(ServiceName, a)
	return nil
}

// Validate implements core.Validator.
func (a *Anthropic) Validate() error {
	if a.config.Model == "" {
		return errors.New("provider.anthropic: model must not be empty")
	}
	if a.client == nil {
		return errors.New("provider.anthropic: client not initialized (Provision not called)")
	}
	return nil
}

// ModelName implements provider.Provider.
func (a *Anthropic) ModelName() string {
	return a.config.Model
}
