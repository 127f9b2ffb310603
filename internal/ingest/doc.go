// Package ingest is the ingestion gateway. It stages uploaded bytes, creates
// the processing record and hands the file to the creation stage. It also
// owns the cascading delete that releases staged and remote copies.
package ingest
