package jobs

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Settings are the per-job render knobs. Callers may override any subset;
// unset fields keep the service defaults.
type Settings struct {
	PauseTrimMs int            `mapstructure:"pause_trim_ms" json:"pause_trim_ms"`
	Audio       AudioSettings  `mapstructure:"audio" json:"audio"`
	Export      ExportSettings `mapstructure:"export" json:"export"`
}

// AudioSettings controls loudness normalization of the final render.
type AudioSettings struct {
	LUFS   float64 `mapstructure:"lufs" json:"lufs"`
	PeakDB float64 `mapstructure:"peak_db" json:"peak_db"`
}

// ExportSettings controls the title hook overlay window.
type ExportSettings struct {
	HookStartMinSec float64 `mapstructure:"hook_start_min_sec" json:"hook_start_min_sec"`
	HookDurationSec float64 `mapstructure:"hook_duration_sec" json:"hook_duration_sec"`
}

// DefaultSettings returns the service defaults applied when a request omits a knob.
func DefaultSettings() Settings {
	return Settings{
		PauseTrimMs: 350,
		Audio: AudioSettings{
			LUFS:   -14,
			PeakDB: -1,
		},
		Export: ExportSettings{
			HookStartMinSec: 0.3,
			HookDurationSec: 2.5,
		},
	}
}

// DecodeSettings merges the raw settings payload over base.
//
// Decoding is weakly typed: clients routinely send numbers as JSON strings
// (form uploads, spreadsheet automations), so "350" is accepted for an int field.
func DecodeSettings(raw map[string]any, base Settings) (Settings, error) {
	out := base

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return base, fmt.Errorf("failed to create settings decoder: %v", err)
	}

	if err := decoder.Decode(raw); err != nil {
		return base, errors.Join(errors.New("settings do not match the expected structure"), err)
	}

	return out, nil
}
