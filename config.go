package tilemap

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Concurrency int                  `hcl:"concurrency,optional"`
	LogLevel    string               `hcl:"log_level,optional"`
	StatePath   string               `hcl:"state_path,optional"`
	Render      *RenderConfigBlock   `hcl:"render,block"`
	Web         *WebConfigBlock      `hcl:"web,block"`
	Outputs     []*OutputConfigBlock `hcl:"output,block"`
	Layers      []*LayerConfigBlock  `hcl:"layer,block"`
	Maps        []*MapConfigBlock    `hcl:"map,block"`
}

type RenderConfigBlock struct {
	DelayMS        int `hcl:"delay_ms,optional"`
	PollIntervalMS int `hcl:"poll_interval_ms,optional"`
}

type WebConfigBlock struct {
	Output         string `hcl:"output,optional"`
	Bind           string `hcl:"bind,optional"`
	Port           int    `hcl:"port,optional"`
	MaxConnections int    `hcl:"max_connections,optional"`
	Metrics        *bool  `hcl:"metrics,optional"`
}

type OutputConfigBlock struct {
	Name          string `hcl:"name,label"`
	Path          string `hcl:"path"`
	IncludeStatic bool   `hcl:"include_static,optional"`
}

type LayerConfigBlock struct {
	Name         string  `hcl:"name,label"`
	Render       string  `hcl:"render"`
	Opacity      float64 `hcl:"opacity,optional"`
	Shading      *bool   `hcl:"shading,optional"`
	Lighting     bool    `hcl:"lighting,optional"`
	StripCeiling bool    `hcl:"strip_ceiling,optional"`
}

type MapConfigBlock struct {
	Name    string   `hcl:"name,label"`
	Output  string   `hcl:"output"`
	Path    string   `hcl:"path"`
	Layers  []string `hcl:"layers"`
	Version string   `hcl:"version,optional"`
}

func (l *LayerConfigBlock) Settings() RenderSettings {
	return RenderSettings{
		Shading:      l.Shading == nil || *l.Shading,
		Lighting:     l.Lighting,
		StripCeiling: l.StripCeiling,
	}
}

func (c *Config) Output(name string) *OutputConfigBlock {
	for _, o := range c.Outputs {
		if o.Name == name {
			return o
		}
	}
	return nil
}

func (c *Config) Layer(name string) *LayerConfigBlock {
	for _, l := range c.Layers {
		if l.Name == name {
			return l
		}
	}
	return nil
}

func (c *Config) RenderDelay() time.Duration {
	return time.Duration(c.Render.DelayMS) * time.Millisecond
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Render.PollIntervalMS) * time.Millisecond
}

func (c *Config) MetricsEnabled() bool {
	return c.Web.Metrics == nil || *c.Web.Metrics
}

var envFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

func newHCLEvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{},
		Functions: map[string]function.Function{
			"env": envFunc,
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	var cfg Config
	evalCtx := newHCLEvalContext()
	err := hclsimple.DecodeFile(path, evalCtx, &cfg)
	if err != nil {
		return nil, err
	}
	return finishConfig(&cfg)
}

// DecodeConfig parses configuration from src. filename picks the syntax and
// is used in diagnostics.
func DecodeConfig(filename string, src []byte) (*Config, error) {
	var cfg Config
	err := hclsimple.Decode(filename, src, newHCLEvalContext(), &cfg)
	if err != nil {
		return nil, err
	}
	return finishConfig(&cfg)
}

func finishConfig(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.GOMAXPROCS(0)
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.StatePath == "" {
		c.StatePath = "tilemap.state"
	}

	if c.Render == nil {
		c.Render = &RenderConfigBlock{}
	}
	if c.Render.DelayMS <= 0 {
		c.Render.DelayMS = 5000
	}
	if c.Render.PollIntervalMS <= 0 {
		c.Render.PollIntervalMS = 1000
	}

	if c.Web == nil {
		c.Web = &WebConfigBlock{}
	}
	if c.Web.Output == "" && len(c.Outputs) > 0 {
		c.Web.Output = c.Outputs[0].Name
	}
	if c.Web.Bind == "" {
		c.Web.Bind = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8100
	}
	if c.Web.MaxConnections <= 0 {
		c.Web.MaxConnections = 100
	}

	for _, l := range c.Layers {
		if l.Opacity == 0 {
			l.Opacity = 1
		}
	}
}

func (c *Config) Validate() error {
	seen := map[string]struct{}{}
	for _, o := range c.Outputs {
		if _, ok := seen[o.Name]; ok {
			return fmt.Errorf("%w: duplicate output %q", ErrInvalidConfig, o.Name)
		}
		seen[o.Name] = struct{}{}
	}

	seen = map[string]struct{}{}
	for _, l := range c.Layers {
		if _, ok := seen[l.Name]; ok {
			return fmt.Errorf("%w: duplicate layer %q", ErrInvalidConfig, l.Name)
		}
		seen[l.Name] = struct{}{}
		if l.Opacity < 0 || l.Opacity > 1 {
			return fmt.Errorf("%w: layer %q opacity must be between 0 and 1", ErrInvalidConfig, l.Name)
		}
	}

	seen = map[string]struct{}{}
	for _, m := range c.Maps {
		if _, ok := seen[m.Name]; ok {
			return fmt.Errorf("%w: duplicate map %q", ErrInvalidConfig, m.Name)
		}
		seen[m.Name] = struct{}{}

		if c.Output(m.Output) == nil {
			return fmt.Errorf("%w: map %q references unknown output %q", ErrInvalidConfig, m.Name, m.Output)
		}
		if len(m.Layers) == 0 {
			return fmt.Errorf("%w: map %q has no layers", ErrInvalidConfig, m.Name)
		}
		for _, layer := range m.Layers {
			if c.Layer(layer) == nil {
				return fmt.Errorf("%w: map %q references unknown layer %q", ErrInvalidConfig, m.Name, layer)
			}
		}
	}

	if c.Web.Output != "" && c.Output(c.Web.Output) == nil {
		return fmt.Errorf("%w: web references unknown output %q", ErrInvalidConfig, c.Web.Output)
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("%w: invalid web port %d", ErrInvalidConfig, c.Web.Port)
	}
	return nil
}
