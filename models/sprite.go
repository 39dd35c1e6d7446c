package models

// SpriteMeta describes one icon's placement inside a sprite sheet.
type SpriteMeta struct {
	X          int `json:"x"`
	Y          int `json:"y"`
	Width      int `json:"width"`
	Height     int `json:"height"`
	PixelRatio int `json:"pixelRatio"`
}
