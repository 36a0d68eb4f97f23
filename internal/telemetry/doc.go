// Package telemetry streams decimated mixer outputs to Server-Sent Events
// clients.
//
// Each event carries a monotonically increasing ID. Clients reconnecting
// with a Last-Event-ID header receive the buffered events they missed.
package telemetry
