package pyramid

// LevelFactor returns the downsample factor of a pyramid level: 2^level.
// Level 0 is the untouched original resolution.
func LevelFactor(level int) int {
	return 1 << level
}

// LevelShape returns the (height, width) of one pyramid level derived from a
// full-resolution plane of h0 by w0 pixels. Shapes shrink by ceil-division,
// so a dimension never drops below one pixel; the level count itself is not
// clamped here and choosing a sane number of levels is the caller's
// responsibility.
func LevelShape(h0, w0, level int) (h, w int) {
	f := LevelFactor(level)
	return ceilDiv(h0, f), ceilDiv(w0, f)
}
