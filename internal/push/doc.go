// Package push delivers message notifications to device tokens through
// Firebase Cloud Messaging.
//
// TokenDirectory caches each user's tokens in an expiring LRU in front of the
// file store. FCM sends multicasts in chunks of the service limit and reports
// tokens FCM no longer recognizes so the directory can prune them.
package push
