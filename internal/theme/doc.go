// Package theme resolves greeter themes.
//
// A theme is a directory under the themes directory holding a
// metadata.desktop descriptor, a GtkBuilder main script, an optional
// stylesheet and an optional INI config file whose values are substituted
// into the main script and stylesheet as ${key}. When an installed theme
// cannot be read the embedded default theme is used instead.
package theme
