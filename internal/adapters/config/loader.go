// Package config loads the bincache runtime configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"go.trai.ch/bincache/internal/core/domain"
	"go.trai.ch/bincache/internal/core/ports"
	"go.trai.ch/zerr"
)

// EnvPrefix prefixes every environment override, e.g. BINCACHE_INSTALL_ROOT.
const EnvPrefix = "BINCACHE"

const defaultToolRoot = "~/.bincache"

var defaults = map[string]string{
	"install_root":           defaultToolRoot + "/opt",
	"projection":             domain.DefaultProjection,
	"tool_root":              defaultToolRoot,
	"cache_root":             defaultToolRoot + "/cache",
	"signing.public_keyring": defaultToolRoot + "/gpg/pubring.asc",
	"signing.secret_keyring": defaultToolRoot + "/gpg/secring.asc",
	"signing.key":            "",
}

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader with viper.
type Loader struct {
	logger      ports.Logger
	searchPaths []string
}

// NewLoader creates a Loader searching the working directory and the tool root.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{
		logger:      log,
		searchPaths: []string{".", "$HOME/.bincache"},
	}
}

// Load reads the configuration. An explicit path must exist; otherwise the
// search paths are tried and a missing file yields the defaults.
func (l *Loader) Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", path)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", expanded)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(domain.ConfigFileName, filepath.Ext(domain.ConfigFileName)))
		v.SetConfigType("yaml")
		for _, p := range l.searchPaths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
			}
			l.debug("no configuration file found, using defaults")
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		l.debug(fmt.Sprintf("loaded configuration from %s", used))
	}

	var file File
	if err := v.Unmarshal(&file); err != nil {
		return nil, zerr.Wrap(err, domain.ErrConfigParseFailed.Error())
	}

	return toDomain(&file)
}

func (l *Loader) debug(msg string) {
	if l.logger != nil {
		l.logger.Debug(msg)
	}
}

func toDomain(f *File) (*domain.Config, error) {
	cfg := &domain.Config{Projection: f.Projection}

	paths := []struct {
		key string
		in  string
		out *string
	}{
		{"install_root", f.InstallRoot, &cfg.InstallRoot},
		{"tool_root", f.ToolRoot, &cfg.ToolRoot},
		{"cache_root", f.CacheRoot, &cfg.CacheRoot},
		{"signing.public_keyring", f.Signing.PublicKeyring, &cfg.Signing.PublicKeyring},
		{"signing.secret_keyring", f.Signing.SecretKeyring, &cfg.Signing.SecretKeyring},
	}
	for _, p := range paths {
		abs, err := absPath(p.in)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, err.Error()), "key", p.key)
		}
		*p.out = abs
	}
	cfg.Signing.Key = f.Signing.Key

	if cfg.InstallRoot == "" || cfg.CacheRoot == "" {
		return nil, zerr.Wrap(domain.ErrConfigInvalid, "install_root and cache_root must be set")
	}
	if !strings.Contains(cfg.Projection, "{hash") {
		return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "projection must contain the spec hash"), "projection", cfg.Projection)
	}

	seen := make(map[string]bool, len(f.Mirrors))
	for i, m := range f.Mirrors {
		if m.FetchURL == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "mirror has no fetch_url"), "mirror", i)
		}
		name := m.Name
		if name == "" {
			name = m.FetchURL
		}
		if seen[name] {
			return nil, zerr.With(zerr.Wrap(domain.ErrConfigInvalid, "duplicate mirror"), "mirror", name)
		}
		seen[name] = true
		cfg.Mirrors = append(cfg.Mirrors, domain.Mirror{
			Name:     name,
			FetchURL: expandURL(m.FetchURL),
			PushURL:  expandURL(m.PushURL),
		})
	}

	return cfg, nil
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}

// expandURL expands a leading ~ in bare mirror paths and leaves URLs alone.
func expandURL(raw string) string {
	if !strings.HasPrefix(raw, "~") {
		return raw
	}
	expanded, err := homedir.Expand(raw)
	if err != nil {
		return raw
	}
	return expanded
}
