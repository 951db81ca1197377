package domain

// SourceKind classifies a capture target.
type SourceKind string

const (
	SourceKindMonitor SourceKind = "monitor"
	SourceKindWindow  SourceKind = "window"
	SourceKindVirtual SourceKind = "virtual"
)

// PersistMode is the consent persistence intent passed to the portal.
type PersistMode string

const (
	// PersistNone requests a one-shot session. Used by the fallback path.
	PersistNone PersistMode = "none"

	// PersistUntilRevoked requests a restore token that stays valid until the
	// user revokes it. Used by the prime path.
	PersistUntilRevoked PersistMode = "until_revoked"
)

// PixelFormat identifies the memory layout of a raw frame buffer.
type PixelFormat string

const (
	PixelFormatRGBA PixelFormat = "rgba"
	PixelFormatBGRA PixelFormat = "bgra"
	PixelFormatRGBX PixelFormat = "rgbx"
	PixelFormatBGRX PixelFormat = "bgrx"
)

// Region is a pixel rectangle in frame coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TransformOptions are the caller-requested post-capture transforms.
// Crop is applied before scale so pixels that will be discarded are never
// resampled.
type TransformOptions struct {
	Region *Region `json:"region,omitempty"`
	// Scale is a multiplier on both axes. Zero or one means no scaling.
	Scale float64 `json:"scale,omitempty"`
}

// RawFrame is one captured frame, normalized to RGBA by the transform stage.
type RawFrame struct {
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	PixelFormat PixelFormat `json:"pixel_format"`
	Data        []byte      `json:"data"`
}

// CaptureRequest is one capture call: which source, and how to shape the
// resulting frame.
type CaptureRequest struct {
	SourceID  string           `json:"source_id"`
	Transform TransformOptions `json:"transform"`
}
