// Package window slices a continuous mono stream into fixed analysis
// windows for enhancement and reassembles the results with overlap-add
// crossfading.
//
// Consecutive windows share a configurable number of overlap frames of
// input. Each enhanced window contributes three regions to the output: the
// leading overlap is crossfaded against the tail withheld from the
// previous window, the middle is emitted verbatim, and the trailing
// overlap is withheld until the next window (or the final flush) resolves
// it. The crossfade uses complementary linear fades with unity gain across
// the seam, so a passthrough enhancer reproduces its input exactly and no
// frame is ever emitted twice or dropped.
package window
