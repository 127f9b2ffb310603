// Package language normalizes the language reported by speech-to-text into
// a BCP 47 tag and an English display name for summarization prompts.
// Transcription services report either ISO codes ("en", "eng") or English
// words ("english"); both resolve to the same tag.
package language
