// Package staging manages the local directory where uploaded bytes wait for
// the pipeline stages. Files are named {fileId}{ext}; writes are atomic and a
// periodic pass removes stale files whose record no longer exists.
package staging
