// Package slides turns a lecture video into a short list of distinct slide
// screenshots.
//
// Frames are sampled at a fixed rate inside the slide region and hashed with a
// 64-bit DCT perceptual hash. Deduplication is a single pass in capture
// order: the first frame is a slide, and every later frame becomes a new slide
// only when its Hamming distance to the most recently accepted slide reaches
// the threshold. Hashing may run in parallel; results are index-addressed so
// the reduction is always in temporal order.
//
// The Extractor stage adapter wires sampling, hashing, optional OCR, and the
// interactive slide-curation checkpoint together and writes slides.json,
// slides_original.json, and vocabulary.txt.
package slides
