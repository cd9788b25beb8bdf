package theme

import (
	"errors"
	"fmt"

	"gopkg.in/ini.v1"
)

// MetadataFile is the descriptor every theme directory must contain.
const MetadataFile = "metadata.desktop"

// metadataSection is the INI section holding theme metadata.
const metadataSection = "GreeterTheme"

// ErrNoMainScript is returned when a descriptor does not name a main script.
var ErrNoMainScript = errors.New("theme metadata has no MainScript")

// Metadata is the parsed contents of metadata.desktop.
type Metadata struct {
	Name        string
	Description string
	Author      string
	Version     string
	MainScript  string // Relative to the theme directory
	ConfigFile  string // Relative to the theme directory, optional
	Stylesheet  string // Relative to the theme directory, optional
}

// ReadMetadata parses a metadata descriptor from a path or raw bytes.
func ReadMetadata(source any) (*Metadata, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme metadata: %w", err)
	}

	sec, err := f.GetSection(metadataSection)
	if err != nil {
		return nil, fmt.Errorf("theme metadata has no [%s] section", metadataSection)
	}

	m := &Metadata{
		Name:        sec.Key("Name").String(),
		Description: sec.Key("Description").String(),
		Author:      sec.Key("Author").String(),
		Version:     sec.Key("Version").String(),
		MainScript:  sec.Key("MainScript").String(),
		ConfigFile:  sec.Key("ConfigFile").String(),
		Stylesheet:  sec.Key("Stylesheet").String(),
	}
	if m.MainScript == "" {
		return nil, ErrNoMainScript
	}
	return m, nil
}

// ReadConfig parses a theme config file from a path or raw bytes.
// Keys in [General] (or outside any section) are returned bare; keys in other
// sections are returned as "Section/key".
func ReadConfig(source any) (map[string]string, error) {
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, source)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme config: %w", err)
	}

	values := make(map[string]string)
	for _, sec := range f.Sections() {
		prefix := ""
		if name := sec.Name(); name != ini.DefaultSection && name != "General" {
			prefix = name + "/"
		}
		for _, key := range sec.Keys() {
			values[prefix+key.Name()] = key.Value()
		}
	}
	return values, nil
}
