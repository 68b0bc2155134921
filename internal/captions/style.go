package captions

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"
)

// Style describes an ASS caption style preset.
//
// Presets are stored as TOML files so operators can tune caption looks
// without a rebuild. Colours use the ASS &HAABBGGRR form.
type Style struct {
	Name     string `toml:"name"`
	FontName string `toml:"font_name"`
	FontSize int    `toml:"font_size"`

	PrimaryColour string `toml:"primary_colour"`
	OutlineColour string `toml:"outline_colour"`
	BackColour    string `toml:"back_colour"`

	Bold      bool `toml:"bold"`
	Outline   int  `toml:"outline"`
	Shadow    int  `toml:"shadow"`
	Alignment int  `toml:"alignment"`

	MarginL int `toml:"margin_l"`
	MarginR int `toml:"margin_r"`
	MarginV int `toml:"margin_v"`

	PlayResX int `toml:"play_res_x"`
	PlayResY int `toml:"play_res_y"`
}

// DefaultStyle returns the built-in vertical-video caption style.
func DefaultStyle() Style {
	return Style{
		Name:     "TikTokClassic",
		FontName: "Arial",
		FontSize: 64,

		PrimaryColour: "&H00FFFFFF",
		OutlineColour: "&H00000000",
		BackColour:    "&H00000000",

		Bold:      true,
		Outline:   4,
		Shadow:    0,
		Alignment: 2,

		MarginL: 80,
		MarginR: 80,
		MarginV: 240,

		PlayResX: 1080,
		PlayResY: 1920,
	}
}

// LoadStyle reads a style preset from a TOML file.
// Fields absent from the file keep their DefaultStyle values.
func LoadStyle(path string) (s Style, err error) {
	defer decorate.OnError(&err, "could not load caption style %s:", path)

	s = DefaultStyle()
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return DefaultStyle(), err
	}

	if s.Name == "" {
		return DefaultStyle(), fmt.Errorf("style name must not be empty")
	}
	return s, nil
}

func (s Style) header() string {
	bold := 0
	if s.Bold {
		bold = 1
	}

	return fmt.Sprintf(`[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: %s,%s,%d,%s,%s,%s,%d,0,0,0,100,100,0,0,1,%d,%d,%d,%d,%d,%d,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
`,
		s.PlayResX, s.PlayResY,
		s.Name, s.FontName, s.FontSize,
		s.PrimaryColour, s.OutlineColour, s.BackColour,
		bold, s.Outline, s.Shadow, s.Alignment,
		s.MarginL, s.MarginR, s.MarginV,
	)
}
