package model

// Screen is the geometry of one monitor.
type Screen struct {
	Name    string `cbor:"name"`
	X       int    `cbor:"x"`
	Y       int    `cbor:"y"`
	Width   int    `cbor:"width"`
	Height  int    `cbor:"height"`
	Primary bool   `cbor:"primary"`
}

// PrimaryScreen returns the screen flagged primary, else the first one.
// ok is false when screens is empty.
func PrimaryScreen(screens []Screen) (Screen, bool) {
	for _, s := range screens {
		if s.Primary {
			return s, true
		}
	}
	if len(screens) == 0 {
		return Screen{}, false
	}
	return screens[0], true
}
