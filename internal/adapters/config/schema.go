package config

// File is the structure of the bincache.yaml configuration file.
type File struct {
	InstallRoot string      `mapstructure:"install_root"`
	Projection  string      `mapstructure:"projection"`
	ToolRoot    string      `mapstructure:"tool_root"`
	CacheRoot   string      `mapstructure:"cache_root"`
	Mirrors     []MirrorDTO `mapstructure:"mirrors"`
	Signing     SigningDTO  `mapstructure:"signing"`
}

// MirrorDTO represents a mirror definition in the configuration.
type MirrorDTO struct {
	Name     string `mapstructure:"name"`
	FetchURL string `mapstructure:"fetch_url"`
	PushURL  string `mapstructure:"push_url"`
}

// SigningDTO represents the signing section of the configuration.
type SigningDTO struct {
	PublicKeyring string `mapstructure:"public_keyring"`
	SecretKeyring string `mapstructure:"secret_keyring"`
	Key           string `mapstructure:"key"`
}
