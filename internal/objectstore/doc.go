// Package objectstore is the media CDN client used by the file-creation
// stage. It speaks the Cloudinary upload API: signed multipart uploads,
// signed destroys and derived blur transformations.
//
// Responses map onto services error markers: 5xx, 429 and network failures
// are ErrTransient, other 4xx are ErrExternalTool. Both are retried by the
// workflow up to the attempt ceiling.
package objectstore
