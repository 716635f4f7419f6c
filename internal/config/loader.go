package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"finpal/internal/template"
	"finpal/pkg/logging"
)

// ResolvePath picks the configuration path: an explicit flag value wins,
// then MCP_CONFIG_PATH, then DefaultConfigFile in the working directory.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(ConfigPathEnv); env != "" {
		return env
	}
	return DefaultConfigFile
}

// Load reads, renders and validates the configuration at path. It returns
// ErrConfigNotFound when the file does not exist and a *ParseError when it
// cannot be decoded.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("read configuration %s: %w", path, err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	f.Path = path

	if err := f.render(filepath.Dir(path)); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	logging.Info("ConfigLoader", "Loaded %d server definitions from %s", len(f.MCPServers), path)
	return f, nil
}

// Parse decodes JSON or YAML configuration bytes without rendering templates
// or validating.
func Parse(data []byte) (*File, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, errors.New("configuration is empty")
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.MCPServers == nil {
		f.MCPServers = map[string]ServerDefinition{}
	}
	f.resolve()
	return &f, nil
}

func (f *File) render(configDir string) error {
	engine := template.New()
	data := map[string]interface{}{"ConfigDir": configDir}

	for name, def := range f.MCPServers {
		args, err := engine.RenderSlice(def.Args, data)
		if err != nil {
			return fmt.Errorf("mcpServers.%s.args: %w", name, err)
		}
		env, err := engine.RenderMap(def.Env, data)
		if err != nil {
			return fmt.Errorf("mcpServers.%s.env: %w", name, err)
		}
		def.Args = args
		def.Env = env
		f.MCPServers[name] = def
	}
	return nil
}

// Marshal encodes f as indented JSON, or as YAML when format is "yaml".
func Marshal(f *File, format string) ([]byte, error) {
	switch format {
	case "yaml", "yml":
		return yaml.Marshal(f)
	case "", "json":
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
