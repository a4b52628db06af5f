package mdmsdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Module-wide connection defaults.
const (
	// CloudHostSuffix marks hosted instances; they listen on the standard
	// HTTPS port. Anything else defaults to the on-premise appliance port.
	CloudHostSuffix = ".mdmcloud.net"
	CloudPort       = 443
	OnPremPort      = 8443

	DefaultTimeout     = 60 * time.Second
	DefaultOpenTimeout = 60 * time.Second

	// MinAPIVersion is the lowest server API version the SDK speaks.
	MinAPIVersion = "1.2.0"

	// TokenReuseMinLife is the minimum remaining life a caller-supplied
	// Token must have to be adopted by Connect.
	TokenReuseMinLife = 60 * time.Second

	// DefaultKeepAliveInterval is how often the keep-alive task wakes.
	DefaultKeepAliveInterval = 60 * time.Second

	// DefaultRefreshBuffer is the remaining-life threshold below which the
	// keep-alive task refreshes the token.
	DefaultRefreshBuffer = 30 * time.Minute
)

const apiRootPath = "/api"

// connDefaults is the external-configuration layer of the connect handshake:
// values read from an optional yaml file overlaid with MDM_* environment
// variables. Explicit Params always win over these; these win over the
// built-in constants.
type connDefaults struct {
	Host              string
	Port              int
	User              string
	Timeout           time.Duration
	OpenTimeout       time.Duration
	VerifyCert        *bool
	KeepAliveInterval time.Duration
	RefreshBuffer     time.Duration
}

// fileConfig is the yaml shape of the config file. Durations are strings in
// time.ParseDuration form ("90s", "30m").
type fileConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	User              string `yaml:"user"`
	Timeout           string `yaml:"timeout"`
	OpenTimeout       string `yaml:"open_timeout"`
	VerifyCert        *bool  `yaml:"verify_cert"`
	KeepAliveInterval string `yaml:"keepalive_interval"`
	RefreshBuffer     string `yaml:"refresh_buffer"`
}

// loadConnDefaults reads the config file (MDM_CONFIG, or ~/.mdm/config.yaml
// when unset) and overlays MDM_* environment variables. A missing file is
// fine; a malformed file or malformed value fails the connect.
func loadConnDefaults() (connDefaults, error) {
	var d connDefaults

	path := os.Getenv("MDM_CONFIG")
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".mdm", "config.yaml")
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return d, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			if err := d.applyFile(fc); err != nil {
				return d, fmt.Errorf("invalid config file %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return d, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := d.applyEnv(); err != nil {
		return d, err
	}
	return d, nil
}

func (d *connDefaults) applyFile(fc fileConfig) error {
	d.Host = fc.Host
	d.Port = fc.Port
	d.User = fc.User
	d.VerifyCert = fc.VerifyCert

	var err error
	if d.Timeout, err = parseDuration(fc.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}
	if d.OpenTimeout, err = parseDuration(fc.OpenTimeout); err != nil {
		return fmt.Errorf("open_timeout: %w", err)
	}
	if d.KeepAliveInterval, err = parseDuration(fc.KeepAliveInterval); err != nil {
		return fmt.Errorf("keepalive_interval: %w", err)
	}
	if d.RefreshBuffer, err = parseDuration(fc.RefreshBuffer); err != nil {
		return fmt.Errorf("refresh_buffer: %w", err)
	}
	return nil
}

func (d *connDefaults) applyEnv() error {
	if v := os.Getenv("MDM_HOST"); v != "" {
		d.Host = v
	}
	if v := os.Getenv("MDM_USER"); v != "" {
		d.User = v
	}
	if v := os.Getenv("MDM_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MDM_PORT %q: %w", v, err)
		}
		d.Port = port
	}
	if v := os.Getenv("MDM_VERIFY_CERT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid MDM_VERIFY_CERT %q: %w", v, err)
		}
		d.VerifyCert = &b
	}

	var err error
	if d.Timeout, err = envDuration("MDM_TIMEOUT", d.Timeout); err != nil {
		return err
	}
	if d.OpenTimeout, err = envDuration("MDM_OPEN_TIMEOUT", d.OpenTimeout); err != nil {
		return err
	}
	if d.KeepAliveInterval, err = envDuration("MDM_KEEPALIVE_INTERVAL", d.KeepAliveInterval); err != nil {
		return err
	}
	if d.RefreshBuffer, err = envDuration("MDM_REFRESH_BUFFER", d.RefreshBuffer); err != nil {
		return err
	}
	return nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return dur, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// defaultPortFor infers the port from the host: hosted instances sit behind
// the standard HTTPS port, everything else gets the on-premise default.
func defaultPortFor(host string) int {
	if len(host) > len(CloudHostSuffix) && host[len(host)-len(CloudHostSuffix):] == CloudHostSuffix {
		return CloudPort
	}
	return OnPremPort
}

// versionAtLeast compares dotted numeric versions segment by segment, up to
// three segments; missing segments count as zero.
func versionAtLeast(have, want string) bool {
	hv := versionSegments(have)
	wv := versionSegments(want)
	for i := range 3 {
		if hv[i] != wv[i] {
			return hv[i] > wv[i]
		}
	}
	return true
}

func versionSegments(v string) [3]int {
	var out [3]int
	seg := 0
	num := 0
	for i := 0; i < len(v) && seg < 3; i++ {
		c := v[i]
		switch {
		case c >= '0' && c <= '9':
			num = num*10 + int(c-'0')
		case c == '.':
			out[seg] = num
			num = 0
			seg++
		default:
			// Stop at pre-release or build suffixes.
			i = len(v)
		}
	}
	if seg < 3 {
		out[seg] = num
	}
	return out
}
