// Package observability provides operational logging, the domain event log,
// metrics and alerting for Meridian. Domain events are persisted as JSON
// Lines and metrics are derived from them on demand.
package observability
