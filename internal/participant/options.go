package participant

import (
	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/extract"
	"github.com/hpungsan/testsmith/internal/locate"
)

// ExtractOptions maps configuration onto extractor options.
func ExtractOptions(cfg *config.Config) extract.Options {
	opts := extract.DefaultOptions()
	if len(cfg.FenceTags) > 0 {
		opts.FenceTags = cfg.FenceTags
	}
	opts.DefaultImport = cfg.ImportLine()
	return opts
}

// LocateOptions maps configuration onto locator options.
func LocateOptions(cfg *config.Config) locate.Options {
	return locate.Options{
		Suffix:        cfg.TestSuffix,
		MaxAttempts:   cfg.MaxSuffixAttempts,
		StopWords:     cfg.StopWords,
		CandidateDirs: cfg.CandidateDirs,
	}
}
