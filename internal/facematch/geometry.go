package facematch

import "math"

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// CornerBBoxToRect converts a pixel bbox [x1, y1, x2, y2] to an integer
// rectangle (x, y, w, h). Coordinates are rounded to the nearest pixel.
// ok is false for malformed boxes.
func CornerBBoxToRect(bbox []float64) (x, y, w, h int, ok bool) {
	if len(bbox) != 4 {
		return 0, 0, 0, 0, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, 0, 0, 0, false
		}
	}
	x = int(math.Round(bbox[0]))
	y = int(math.Round(bbox[1]))
	w = int(math.Round(bbox[2])) - x
	h = int(math.Round(bbox[3])) - y
	return x, y, w, h, true
}

// NormalizePoint converts a pixel coordinate to relative (0-1) coordinates,
// clamped to the frame.
func NormalizePoint(px, py float64, width, height int) (float64, float64) {
	if width <= 0 || height <= 0 {
		return 0, 0
	}
	return clamp01(px / float64(width)), clamp01(py / float64(height))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return min(max(v, 0), 1)
}

// SuppressOverlapping returns the indices of the boxes to keep, in input order.
// A box is dropped when its IoU with an already kept box exceeds threshold,
// so the earlier detection always wins.
func SuppressOverlapping(boxes [][]float64, threshold float64) []int {
	kept := make([]int, 0, len(boxes))
	for i, box := range boxes {
		overlaps := false
		for _, k := range kept {
			if ComputeIoU(box, boxes[k]) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, i)
		}
	}
	return kept
}
