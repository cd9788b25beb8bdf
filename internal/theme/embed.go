package theme

import (
	"embed"
	"path"
)

// EmbeddedThemes contains the bundled themes.
//
//go:embed themes
var EmbeddedThemes embed.FS

// DefaultThemeName is the name of the built-in default theme.
const DefaultThemeName = "default"

// embeddedRoot returns the embed.FS directory of a bundled theme.
func embeddedRoot(name string) string {
	return path.Join("themes", name)
}

// ListEmbeddedThemes returns the names of all bundled themes.
func ListEmbeddedThemes() []string {
	entries, err := EmbeddedThemes.ReadDir("themes")
	if err != nil {
		return []string{DefaultThemeName}
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names
}

// Embedded resolves a bundled theme by name.
func Embedded(name string) (*Descriptor, error) {
	root := embeddedRoot(name)

	raw, err := EmbeddedThemes.ReadFile(path.Join(root, MetadataFile))
	if err != nil {
		return nil, err
	}
	meta, err := ReadMetadata(raw)
	if err != nil {
		return nil, err
	}

	d := &Descriptor{
		Name:        name,
		Title:       meta.Name,
		Description: meta.Description,
		BasePath:    root,
		MainScript:  path.Join(root, meta.MainScript),
		Embedded:    true,
		Config:      map[string]string{},
	}
	if meta.Stylesheet != "" {
		d.Stylesheet = path.Join(root, meta.Stylesheet)
	}
	if meta.ConfigFile != "" {
		d.ConfigFile = path.Join(root, meta.ConfigFile)
		rawConfig, err := EmbeddedThemes.ReadFile(d.ConfigFile)
		if err != nil {
			return nil, err
		}
		if d.Config, err = ReadConfig(rawConfig); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Default returns the embedded default theme. It panics if the bundle is broken,
// which a unit test guards against.
func Default() *Descriptor {
	d, err := Embedded(DefaultThemeName)
	if err != nil {
		panic("theme: embedded default theme is invalid: " + err.Error())
	}
	return d
}
