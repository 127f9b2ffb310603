// Package broker is the durable job transport between the ingestion gateway
// and the stage workers.
//
// AMQP keeps one supervised RabbitMQ connection. When the connection drops it
// waits a fixed delay, dials again and re-declares every queue it has seen;
// publishers block until the connection is back and consumers resubscribe on
// their own channels. Memory offers the same at-least-once contract inside
// the process for tests and local development.
//
// Each message carries its bounded-retry attempt in the x-attempt header.
package broker
