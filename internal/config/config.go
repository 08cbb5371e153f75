// Package config loads the module configuration.
//
// The file is YAML or JSON, chosen by extension. Fields missing from the file
// keep their defaults, and a handful of environment variables override the
// result before it is validated.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/corrreia/modcoreclr/internal/dynlib"
)

// Environment variables consulted by Load.
const (
	EnvConfig        = "MODCORECLR_CONFIG"
	EnvLoaderPath    = "MODCORECLR_LOADER_PATH"
	EnvRuntimeConfig = "MODCORECLR_RUNTIME_CONFIG"
	EnvHostfxrPath   = "MODCORECLR_HOSTFXR_PATH"
	EnvLogLevel      = "MODCORECLR_LOG_LEVEL"
	EnvDotnetRoot    = "DOTNET_ROOT"
)

// Loader entry point defaults.
const (
	DefaultTypeName         = "FreeSWITCH.Loader, Loader"
	DefaultMethodName       = "Load"
	DefaultDelegateTypeName = "FreeSWITCH.Loader+LoadDelegate, Loader"
	DefaultName             = "coreclr"
)

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("config: invalid")

// Dirs are the host directories the defaults and search paths derive from.
type Dirs struct {
	Conf string
	Mod  string
}

type Config struct {
	Loader  LoaderConfig  `yaml:"loader" json:"loader"`
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`
	Host    HostConfig    `yaml:"host" json:"host"`
	Log     LogConfig     `yaml:"log" json:"log"`
	Journal JournalConfig `yaml:"journal" json:"journal"`
}

// LoaderConfig names the managed loader and its entry point.
type LoaderConfig struct {
	AssemblyPath      string `yaml:"assembly_path" json:"assembly_path" validate:"required"`
	RuntimeConfigPath string `yaml:"runtime_config_path" json:"runtime_config_path" validate:"required"`
	TypeName          string `yaml:"type_name" json:"type_name" validate:"required"`
	MethodName        string `yaml:"method_name" json:"method_name" validate:"required"`
	DelegateTypeName  string `yaml:"delegate_type_name" json:"delegate_type_name" validate:"required"`
}

// RuntimeConfig controls how hostfxr is found.
type RuntimeConfig struct {
	HostfxrPath string `yaml:"hostfxr_path" json:"hostfxr_path"`
	// NethostPath defaults to the platform nethost name; empty skips nethost.
	NethostPath string `yaml:"nethost_path" json:"nethost_path"`
	DotnetRoot  string `yaml:"dotnet_root" json:"dotnet_root"`
	Probe       bool   `yaml:"probe" json:"probe"`
}

type HostConfig struct {
	CommandName     string   `yaml:"command_name" json:"command_name" validate:"required,cmdname"`
	ApplicationName string   `yaml:"application_name" json:"application_name" validate:"required,cmdname"`
	Sections        []string `yaml:"sections" json:"sections" validate:"dive,oneof=configuration directory dialplan languages chatplan channels"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
}

// JournalConfig enables the bootstrap journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path" validate:"required_if=Enabled true"`
}

// Default returns the configuration used when no file is found.
func Default(dirs Dirs) *Config {
	runtimeDir := filepath.Join(dirs.Mod, "LoaderRuntime")
	return &Config{
		Loader: LoaderConfig{
			AssemblyPath:      filepath.Join(runtimeDir, "Loader.dll"),
			RuntimeConfigPath: filepath.Join(runtimeDir, "Loader.runtimeconfig.json"),
			TypeName:          DefaultTypeName,
			MethodName:        DefaultMethodName,
			DelegateTypeName:  DefaultDelegateTypeName,
		},
		Runtime: RuntimeConfig{NethostPath: dynlib.PlatformName("nethost"), Probe: true},
		Host: HostConfig{
			CommandName:     DefaultName,
			ApplicationName: DefaultName,
			Sections:        []string{"configuration", "directory", "dialplan"},
		},
		Log:     LogConfig{Level: "info"},
		Journal: JournalConfig{Path: filepath.Join(dirs.Mod, "coreclr_journal.db")},
	}
}

// SearchPaths lists the candidate files in order.
func SearchPaths(dirs Dirs) []string {
	var paths []string
	if dirs.Conf != "" {
		base := filepath.Join(dirs.Conf, "autoload_configs", "coreclr")
		paths = append(paths, base+".yaml", base+".yml", base+".json")
	}
	return append(paths, filepath.Join("configs", "coreclr.yaml"))
}

// Load reads the first file found, applies env overrides from getenv and
// validates. When $MODCORECLR_CONFIG is set only that file is tried. The
// returned path is empty when defaults were used.
func Load(dirs Dirs, getenv func(string) string) (*Config, string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	var cfg *Config
	var found string
	if explicit := getenv(EnvConfig); explicit != "" {
		c, err := LoadFile(explicit, dirs)
		if err != nil {
			return nil, "", err
		}
		cfg, found = c, explicit
	} else {
		for _, p := range SearchPaths(dirs) {
			c, err := LoadFile(p, dirs)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, "", err
			}
			cfg, found = c, p
			break
		}
	}
	if cfg == nil {
		cfg = Default(dirs)
	}

	cfg.ApplyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

// LoadFile decodes one file on top of the defaults. It does not validate.
func LoadFile(path string, dirs Dirs) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default(dirs)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. DOTNET_ROOT only fills an
// unset dotnet_root since it is commonly set system wide.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Loader.AssemblyPath, EnvLoaderPath)
	set(&c.Loader.RuntimeConfigPath, EnvRuntimeConfig)
	set(&c.Runtime.HostfxrPath, EnvHostfxrPath)
	set(&c.Log.Level, EnvLogLevel)
	c.Log.Level = strings.ToLower(c.Log.Level)
	if c.Runtime.DotnetRoot == "" {
		set(&c.Runtime.DotnetRoot, EnvDotnetRoot)
	}
}

// ============================================================
// Validation
// ============================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cmdname", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "" && strings.IndexFunc(s, unicode.IsSpace) < 0
	})
	return v
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}
