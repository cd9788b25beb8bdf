// Package daemon provides the orchestration loop of vigild.
// Each iteration generates a cookie, reloads the configuration, resolves the
// theme, starts the display server, binds a session controller and then
// either performs the first-boot auto-login or runs one greeter process to
// completion before starting over.
package daemon
