// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// DefaultDistanceThreshold is the default L2 distance below which a probe
	// matches a template. The comparison is strict: a distance equal to the
	// threshold is not a match.
	DefaultDistanceThreshold = 0.6

	// DefaultModelProfile is the model profile used when MODEL_PROFILE is unset
	DefaultModelProfile = "facenet-vggface2"

	// DefaultCanonicalSize is the canonical face edge length used when a
	// profile does not specify one
	DefaultCanonicalSize = 160
)

// Detection constants
const (
	// MinDetectionScore is the minimum detector confidence for a region to be kept
	MinDetectionScore = 0.5

	// OverlapIoU is the IoU above which two detections are treated as the same face
	OverlapIoU = 0.6
)

// Image constants
const (
	// JPEGQuality is the quality used for stored canonical faces and debug frames
	JPEGQuality = 95

	// MaxUploadSize is the largest frame accepted by the HTTP API (in bytes)
	MaxUploadSize = 32 << 20

	// MaxFramePixels caps width*height of a frame; compressed uploads are
	// checked before they are decoded
	MaxFramePixels = 4096 * 4096

	// LastScanFrameName is the file name written into SCAN_DEBUG_DIR
	LastScanFrameName = "last_scan_frame.jpg"
)

// Listing constants
const (
	// DefaultEventLimit is the default number of access events returned by listings
	DefaultEventLimit = 100

	// MaxEventLimit caps the number of access events a single listing may return
	MaxEventLimit = 10000

	// DefaultConcurrency is the default number of parallel workers for bulk enrollment
	DefaultConcurrency = 4
)
