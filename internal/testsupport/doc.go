// Package testsupport offers fixtures shared by package tests: a valid config
// rooted in temp directories, an opened file store, staged files and a
// polling helper for asynchronous assertions.
package testsupport
