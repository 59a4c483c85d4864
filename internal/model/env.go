package model

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads .env style files into the process environment. Missing
// files are skipped and variables already present in the environment keep
// their value.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if strings.TrimSpace(path) == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading env file %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg with the variables the host process sets for
// its plugins. lookup is usually os.LookupEnv.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PLUGIN_NAME", &cfg.Plugin)
	str("CALLBACK_BASE_URL", &cfg.Callback.BaseURL)
	str("PROJECT_BASE_PATH", &cfg.Fallback.ProjectBase)
	str("VIDFETCH_RESULTS_DIR", &cfg.Fallback.ResultsDir)
	str("YTDLP_PATH", &cfg.Tool.Path)
	str("YTDLP_FORMAT", &cfg.Tool.Format)
	str("FFMPEG_PATH", &cfg.Tool.FFmpegLocation)
	str("YTDLP_COOKIES", &cfg.Tool.Cookies)
	str("YTDLP_PROXY", &cfg.Tool.Proxy)
	str("DOWNLOAD_DIR", &cfg.Tool.DownloadDir)

	if v, ok := lookup("DOWNLOAD_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return cfg, fmt.Errorf("parsing DOWNLOAD_TIMEOUT: %w", err)
		}
		cfg.Tool.Timeout = Duration(d)
	}
	if v, ok := lookup("DEBUG"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil && b {
			cfg.Verbose = true
		}
	}
	return cfg, nil
}
