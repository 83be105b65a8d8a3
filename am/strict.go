package am

import (
	"sort"

	"github.com/BurntSushi/toml"

	"github.com/teranos/jobd/errors"
)

// FileReport is the result of strictly checking one config file
type FileReport struct {
	Path        string
	UnknownKeys []string
	Config      *Config
}

// CheckFile decodes a TOML file over the defaults, reporting keys that do
// not map to any setting, then runs Validate. Viper silently ignores unknown
// keys, so a typo like "ttl_secs" would otherwise go unnoticed.
func CheckFile(path string) (*FileReport, error) {
	cfg := Defaults()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	report := &FileReport{Path: path, Config: cfg}
	for _, key := range md.Undecoded() {
		report.UnknownKeys = append(report.UnknownKeys, key.String())
	}
	sort.Strings(report.UnknownKeys)

	if err := cfg.Validate(); err != nil {
		return report, errors.WithDetail(err, "File: "+path)
	}
	return report, nil
}
