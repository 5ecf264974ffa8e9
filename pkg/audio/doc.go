// Package audio groups the signal-path building blocks of the purecast
// pipeline:
//
//   - pcm: sample formats and int16/float32 conversions
//   - resampler: input normalization to the mono model rate
//   - enhance: noise suppression models behind a uniform adapter
//   - window: the overlap-add engine that feeds enhancers fixed windows
//
// The packages are layered in that order: a session resamples incoming
// blocks, pushes them through the window engine, and the engine calls the
// enhancer once per analysis window.
package audio
