package logic

// Classify combines the raw levels of the outer and inner light barriers.
// A barrier reads low while its beam is broken, so false means "passing".
func Classify(outer, inner bool) Detection {
	switch {
	case !outer && !inner:
		return DetectBoth
	case !outer:
		return DetectOuter
	case !inner:
		return DetectInner
	default:
		return DetectNone
	}
}
