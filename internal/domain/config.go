package domain

import "path/filepath"

// DownloadFormat is the image format the user wants images downloaded in
// whenever the gallery offers it.
type DownloadFormat int

const (
	DownloadFormatWebp DownloadFormat = iota
	DownloadFormatAvif
)

func (f DownloadFormat) String() string {
	switch f {
	case DownloadFormatWebp:
		return "webp"
	case DownloadFormatAvif:
		return "avif"
	default:
		return ""
	}
}

// ParseDownloadFormat converts a persisted string back into a DownloadFormat,
// defaulting to Webp for anything unrecognised.
func ParseDownloadFormat(s string) DownloadFormat {
	if s == "avif" {
		return DownloadFormatAvif
	}
	return DownloadFormatWebp
}

// ProxyMode selects how the shared HTTP client resolves a proxy.
type ProxyMode int

const (
	ProxyModeSystem ProxyMode = iota
	ProxyModeNoProxy
	ProxyModeCustom
)

func (m ProxyMode) String() string {
	switch m {
	case ProxyModeNoProxy:
		return "noProxy"
	case ProxyModeCustom:
		return "custom"
	default:
		return "system"
	}
}

func ParseProxyMode(s string) ProxyMode {
	switch s {
	case "noProxy":
		return ProxyModeNoProxy
	case "custom":
		return ProxyModeCustom
	default:
		return ProxyModeSystem
	}
}

// DefaultDirFmt is used whenever the persisted dirFmt is empty, per the
// config invariant in §3.
const DefaultDirFmt = "{title} ({id})"

// Config is the process-wide, persisted configuration. Field names mirror
// config.json verbatim; validation lives in Validate.
type Config struct {
	DownloadDir      string `json:"downloadDir"`
	ExportDir        string `json:"exportDir"`
	DownloadFormat   string `json:"downloadFormat"`
	ProxyMode        string `json:"proxyMode"`
	ProxyHost        string `json:"proxyHost"`
	ProxyPort        int    `json:"proxyPort"`
	DirFmt           string `json:"dirFmt"`
	EnableFileLogger bool   `json:"enableFileLogger"`
	LogMaxSize       int    `json:"logMaxSize"`
	LogMaxBackups    int    `json:"logMaxBackups"`
}

// Validate enforces the invariants §3 lists for Config: ports in range,
// and an empty dirFmt falling back to the fixed default.
func (c *Config) Validate() error {
	if c.ProxyPort < 0 || c.ProxyPort > 65535 {
		return NewConfigError("proxyPort must be between 0 and 65535")
	}

	if c.DirFmt == "" {
		c.DirFmt = DefaultDirFmt
	}

	switch ParseProxyMode(c.ProxyMode) {
	case ProxyModeCustom:
		if c.ProxyHost == "" {
			return NewConfigError("proxyHost is required when proxyMode is custom")
		}
	}

	return nil
}

// Defaults returns a Config populated with the spec's defaults. downloadDir
// and exportDir are typed as abs path (§3), so appDataDir anchors both to
// real, writable locations under the app's data directory rather than the
// zero value, mirroring the original's Config::default(app_data_dir).
func Defaults(appDataDir string) *Config {
	return &Config{
		DownloadDir:    filepath.Join(appDataDir, "download"),
		ExportDir:      filepath.Join(appDataDir, "export"),
		DownloadFormat: DownloadFormatWebp.String(),
		ProxyMode:      ProxyModeSystem.String(),
		DirFmt:         DefaultDirFmt,
		LogMaxSize:     50,
		LogMaxBackups:  3,
	}
}
