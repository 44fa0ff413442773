// Package notes turns a transcript and curated slides into Markdown lecture
// notes and post-processes them.
//
// Three stage adapters live here:
//
//   - Generator (generate-notes) merges WhisperX segments with slide groups.
//     A slide is placed before the first segment starting no earlier than one
//     second before the slide appeared; consecutive segments from the same
//     speaker form one paragraph headed "**SPEAKER [MM:SS.mmm]:**".
//   - SpeakerLabeler (label-speakers) cuts short audio samples per diarized
//     speaker, asks the user for names through a checkpoint and rewrites the
//     paragraph headers.
//   - Refiner (refine-notes) summarizes the notes with an LLM and then polishes
//     them chunk by chunk, each chunk starting at a paragraph header.
package notes
