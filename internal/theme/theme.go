package theme

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Descriptor is a resolved theme. It is plain data so it can be handed to the
// greeter process.
type Descriptor struct {
	Name        string            `cbor:"name"`
	Title       string            `cbor:"title"`
	Description string            `cbor:"description"`
	BasePath    string            `cbor:"base_path"`
	MainScript  string            `cbor:"main_script"`
	ConfigFile  string            `cbor:"config_file"`
	Stylesheet  string            `cbor:"stylesheet"`
	Config      map[string]string `cbor:"config"`
	Embedded    bool              `cbor:"embedded"` // Paths refer to EmbeddedThemes
}

// ReadMainScript returns the main script with config values substituted.
func (d *Descriptor) ReadMainScript() (string, error) {
	raw, err := d.readFile(d.MainScript)
	if err != nil {
		return "", fmt.Errorf("failed to read main script: %w", err)
	}
	return ExpandConfig(string(raw), d.Config, true), nil
}

// ReadStylesheet returns the stylesheet with config values substituted,
// or "" if the theme has none.
func (d *Descriptor) ReadStylesheet() (string, error) {
	if d.Stylesheet == "" {
		return "", nil
	}
	raw, err := d.readFile(d.Stylesheet)
	if err != nil {
		return "", fmt.Errorf("failed to read stylesheet: %w", err)
	}
	return ExpandConfig(string(raw), d.Config, false), nil
}

func (d *Descriptor) readFile(path string) ([]byte, error) {
	if d.Embedded {
		return EmbeddedThemes.ReadFile(path)
	}
	return os.ReadFile(path)
}

// ReadDir resolves the theme installed in dir.
func ReadDir(dir string) (*Descriptor, error) {
	meta, err := ReadMetadata(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:        filepath.Base(dir),
		Title:       meta.Name,
		Description: meta.Description,
		BasePath:    dir,
		MainScript:  filepath.Join(dir, meta.MainScript),
		Config:      map[string]string{},
	}

	if _, err := os.Stat(d.MainScript); err != nil {
		return nil, fmt.Errorf("theme main script: %w", err)
	}
	if meta.Stylesheet != "" {
		d.Stylesheet = filepath.Join(dir, meta.Stylesheet)
	}
	if meta.ConfigFile != "" {
		d.ConfigFile = filepath.Join(dir, meta.ConfigFile)
		if d.Config, err = ReadConfig(d.ConfigFile); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Resolver locates the active theme.
type Resolver struct {
	logger *slog.Logger

	// Strict disables the fallback to the embedded default theme.
	Strict bool
}

// NewResolver creates a Resolver.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve locates theme name inside themesDir.
// Resolution order:
//  1. <themesDir>/<name>
//  2. a bundled theme with the same name
//  3. the bundled default theme (unless Strict)
func (r *Resolver) Resolve(themesDir, name string) (*Descriptor, error) {
	if name == "" {
		name = DefaultThemeName
	}

	d, err := ReadDir(filepath.Join(themesDir, name))
	if err == nil {
		return d, nil
	}

	if embedded, embErr := Embedded(name); embErr == nil {
		if !os.IsNotExist(err) {
			r.logger.Debug("using bundled theme", "theme", name, "reason", err)
		}
		return embedded, nil
	}

	if r.Strict {
		return nil, fmt.Errorf("failed to resolve theme %q: %w", name, err)
	}

	r.logger.Warn("failed to resolve theme, using default", "theme", name, "error", err)
	return Default(), nil
}

// configRefRegex matches ${key} references in theme files.
var configRefRegex = regexp.MustCompile(`\$\{([A-Za-z0-9_./-]+)\}`)

// ExpandConfig replaces ${key} references with config values.
// Unknown keys are left untouched. When escapeXML is set, values are escaped
// for use inside XML text and attributes.
func ExpandConfig(text string, values map[string]string, escapeXML bool) string {
	return configRefRegex.ReplaceAllStringFunc(text, func(match string) string {
		key := configRefRegex.FindStringSubmatch(match)[1]
		value, ok := values[key]
		if !ok {
			return match
		}
		if !escapeXML {
			return value
		}
		var buf bytes.Buffer
		_ = xml.EscapeText(&buf, []byte(value))
		return buf.String()
	})
}

// Info describes an available theme for listing.
type Info struct {
	Name        string
	Title       string
	Description string
	Path        string
	Bundled     bool
	Err         error // Set when an installed theme cannot be resolved
}

// List returns installed and bundled themes, installed ones first.
// Installed themes shadow bundled themes with the same name.
func List(themesDir string) []Info {
	seen := make(map[string]bool)
	var themes []Info

	entries, err := os.ReadDir(themesDir)
	if err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(themesDir, entry.Name())
			info := Info{Name: entry.Name(), Path: dir}
			if d, err := ReadDir(dir); err != nil {
				info.Err = err
			} else {
				info.Title = d.Title
				info.Description = d.Description
			}
			seen[entry.Name()] = true
			themes = append(themes, info)
		}
	}

	var bundled []Info
	for _, name := range ListEmbeddedThemes() {
		if seen[name] {
			continue
		}
		info := Info{Name: name, Bundled: true}
		if d, err := Embedded(name); err == nil {
			info.Title = d.Title
			info.Description = d.Description
		}
		bundled = append(bundled, info)
	}
	sort.Slice(bundled, func(i, j int) bool { return bundled[i].Name < bundled[j].Name })

	return append(themes, bundled...)
}
