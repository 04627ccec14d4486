package preflight

import (
	"context"
	"strings"

	"captionminer/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check applicable to cfg.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	if strings.TrimSpace(cfg.Paths.DictionaryPath) != "" {
		results = append(results, CheckFileReadable("Dictionary", cfg.Paths.DictionaryPath))
	}
	if cfg.Segmentation.Engine == "gse" && strings.TrimSpace(cfg.Segmentation.DictionaryPath) != "" {
		results = append(results, CheckFileReadable("Segmentation dictionary", cfg.Segmentation.DictionaryPath))
	}

	results = append(results, CheckBackend(ctx, cfg.API.BaseURL))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
