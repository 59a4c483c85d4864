package model

import (
	"io"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

const (
	TimeoutScopeItem  = "item"
	TimeoutScopeBatch = "batch"

	LogStderr  = "stderr"
	LogDiscard = "discard"

	DefaultPlugin = "VideoFetcher"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version  int      `json:"version" yaml:"version"` // fixed 0 for now
	Plugin   string   `json:"plugin" yaml:"plugin"`
	Verbose  bool     `json:"verbose" yaml:"verbose"`
	Log      string   `json:"log" yaml:"log"` // "stderr"|"discard"|path
	Tool     Tool     `json:"tool" yaml:"tool"`
	Callback Callback `json:"callback" yaml:"callback"`
	Fallback Fallback `json:"fallback" yaml:"fallback"`
}

// Tool describes the acquisition tool and the defaults every job inherits.
type Tool struct {
	Path               string   `json:"path" yaml:"path"`
	FFmpegLocation     string   `json:"ffmpeg_location,omitempty" yaml:"ffmpeg_location,omitempty"`
	Cookies            string   `json:"cookies,omitempty" yaml:"cookies,omitempty"`
	CookiesFromBrowser string   `json:"cookies_from_browser,omitempty" yaml:"cookies_from_browser,omitempty"`
	Proxy              string   `json:"proxy,omitempty" yaml:"proxy,omitempty"`
	DownloadDir        string   `json:"download_dir,omitempty" yaml:"download_dir,omitempty"`
	TempDir            string   `json:"temp_dir,omitempty" yaml:"temp_dir,omitempty"`
	SubtitleDir        string   `json:"subtitle_dir,omitempty" yaml:"subtitle_dir,omitempty"`
	Format             string   `json:"format,omitempty" yaml:"format,omitempty"` // default -f for jobs without their own format
	OutputTemplate     string   `json:"output_template" yaml:"output_template"`
	Timeout            Duration `json:"timeout" yaml:"timeout"`
	TimeoutScope       string   `json:"timeout_scope" yaml:"timeout_scope"` // "item" | "batch"
	TailSize           int      `json:"tail_size" yaml:"tail_size"`
}

// Callback configures delivery of the aggregate payload.
type Callback struct {
	BaseURL        string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	MaxAttempts    int      `json:"max_attempts" yaml:"max_attempts"`
	AttemptTimeout Duration `json:"attempt_timeout" yaml:"attempt_timeout"`
	BaseDelay      Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay       Duration `json:"max_delay" yaml:"max_delay"`
}

// Fallback tells where undeliverable payloads are stored. Dir wins over
// ProjectBase/ResultsDir; with neither set the fallback is disabled.
type Fallback struct {
	Dir         string `json:"dir,omitempty" yaml:"dir,omitempty"`
	ProjectBase string `json:"project_base,omitempty" yaml:"project_base,omitempty"`
	ResultsDir  string `json:"results_dir" yaml:"results_dir"`
}

// Path returns the effective fallback directory or "" when disabled.
func (f Fallback) Path() string {
	if f.Dir != "" {
		return f.Dir
	}
	if f.ProjectBase == "" {
		return ""
	}
	return filepath.Join(f.ProjectBase, f.ResultsDir)
}

func (c Tool) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout)
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(err)
	}
	return cfg
}
