// Package display starts and supervises the X server a greeter and user
// session run on. The server is authorized with a per-iteration cookie
// written to an Xauthority file.
package display
