package config

import "fmt"

func intRange(lo, hi int) Validator {
	return func(value any) error {
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("expected int, got %T", value)
		}
		if v < lo || v > hi {
			return fmt.Errorf("%d out of range [%d,%d]", v, lo, hi)
		}
		return nil
	}
}

func intOneOf(allowed ...int) Validator {
	return func(value any) error {
		v, ok := value.(int)
		if !ok {
			return fmt.Errorf("expected int, got %T", value)
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("%d not one of %v", v, allowed)
	}
}

func stringOneOf(allowed ...string) Validator {
	return func(value any) error {
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("%q not one of %v", v, allowed)
	}
}

func stringMaxLen(max int) Validator {
	return func(value any) error {
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(v) > max {
			return fmt.Errorf("string of length %d exceeds max %d", len(v), max)
		}
		return nil
	}
}

// defaultKeys is the full key table enumerated in the Config Registry
// contract: camera/orientation, image tuning, exposure/AWB/DRC symbolic
// settings, annotation, and the quality/bitrate keys the Quality
// Controller and Encoder Wrapper read directly.
var defaultKeys = []Key{
	{Name: "camera_index", Kind: KindInt, Default: 0, RemoteAccess: false, Validate: intOneOf(0, 1, 2)},
	{Name: "rotation", Kind: KindInt, Default: 0, RemoteAccess: true, Validate: intOneOf(0, 90, 180, 270)},
	{Name: "horizontal_flip", Kind: KindBool, Default: false, RemoteAccess: true},
	{Name: "vertical_flip", Kind: KindBool, Default: false, RemoteAccess: true},

	{Name: "sharpness", Kind: KindInt, Default: 0, RemoteAccess: true, Validate: intRange(-100, 100)},
	{Name: "contrast", Kind: KindInt, Default: 0, RemoteAccess: true, Validate: intRange(-100, 100)},
	{Name: "saturation", Kind: KindInt, Default: 0, RemoteAccess: true, Validate: intRange(-100, 100)},
	{Name: "brightness", Kind: KindInt, Default: 50, RemoteAccess: true, Validate: intRange(0, 100)},
	{Name: "ev", Kind: KindInt, Default: 0, RemoteAccess: true, Validate: intRange(-10, 10)},

	{Name: "exposure_mode", Kind: KindString, Default: "auto", RemoteAccess: true, Validate: stringOneOf(
		"auto", "night", "nightpreview", "backlight", "spotlight", "sports", "snow", "beach", "verylong", "fixedfps", "antishake", "fireworks")},
	{Name: "awb_mode", Kind: KindString, Default: "auto", RemoteAccess: true, Validate: stringOneOf(
		"auto", "sunlight", "cloudy", "shade", "tungsten", "fluorescent", "incandescent", "flash", "horizon")},
	{Name: "flicker_mode", Kind: KindString, Default: "off", RemoteAccess: true, Validate: stringOneOf("off", "auto", "50hz", "60hz")},
	{Name: "drc_mode", Kind: KindString, Default: "off", RemoteAccess: true, Validate: stringOneOf("off", "low", "medium", "high")},

	{Name: "annotation_text", Kind: KindString, Default: "", RemoteAccess: true, Validate: stringMaxLen(64)},
	{Name: "annotation_size_ratio", Kind: KindInt, Default: 6, RemoteAccess: true, Validate: intRange(2, 10)},

	{Name: "max_bitrate", Kind: KindInt, Default: 2_000_000, RemoteAccess: true, Validate: intRange(200, 17_000_000)},
	{Name: "fixed_fps", Kind: KindInt, Default: 30, RemoteAccess: true, Validate: intRange(5, 30)},
	{Name: "dynamic_fps", Kind: KindBool, Default: false, RemoteAccess: true},
	{Name: "dynamic_resolution", Kind: KindBool, Default: true, RemoteAccess: true},
	{Name: "fixed_resolution", Kind: KindString, Default: "1280x720", RemoteAccess: true},
	{Name: "resolution_aspect", Kind: KindString, Default: "16:9", RemoteAccess: true, Validate: stringOneOf("4:3", "16:9")},

	{Name: "still_dir", Kind: KindString, Default: "/tmp/stills", RemoteAccess: false},
	{Name: "still_prefix", Kind: KindString, Default: "still", RemoteAccess: false},
	{Name: "still_max_age_sec", Kind: KindInt, Default: 300, RemoteAccess: true, Validate: intRange(1, 86400)},
	{Name: "still_timeout_ms", Kind: KindInt, Default: 2000, RemoteAccess: true, Validate: intRange(100, 30000)},

	{Name: "device_id", Kind: KindString, Default: "pi-webrtc-streamer", RemoteAccess: false},
}
