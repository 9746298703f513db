package domain

import "slices"

// Mirror is a configured build-cache location.
type Mirror struct {
	Name     string
	FetchURL string
	PushURL  string
}

// PushTarget returns the URL archives are published to.
func (m Mirror) PushTarget() string {
	if m.PushURL != "" {
		return m.PushURL
	}
	return m.FetchURL
}

// SigningConfig locates the keyrings used to sign and verify archives.
type SigningConfig struct {
	PublicKeyring string
	SecretKeyring string
	Key           string
}

// Config is the validated runtime configuration.
type Config struct {
	InstallRoot string
	Projection  string
	ToolRoot    string
	CacheRoot   string
	Mirrors     []Mirror
	Signing     SigningConfig
}

// Layout returns the install layout described by the configuration.
func (c *Config) Layout() Layout {
	return Layout{Root: c.InstallRoot, Projection: c.Projection}
}

// MirrorURLs returns the fetch URL of every configured mirror in order.
func (c *Config) MirrorURLs() []string {
	urls := make([]string, 0, len(c.Mirrors))
	for _, m := range c.Mirrors {
		urls = append(urls, m.FetchURL)
	}
	return urls
}

// FindMirror looks a mirror up by name or URL. Unknown URLs are returned as
// an anonymous mirror so callers can target ad-hoc locations.
func (c *Config) FindMirror(nameOrURL string) Mirror {
	i := slices.IndexFunc(c.Mirrors, func(m Mirror) bool {
		return m.Name == nameOrURL || m.FetchURL == nameOrURL || m.PushURL == nameOrURL
	})
	if i >= 0 {
		return c.Mirrors[i]
	}
	return Mirror{Name: nameOrURL, FetchURL: nameOrURL}
}
