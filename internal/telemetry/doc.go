// Package telemetry exports service metrics through OpenTelemetry.
package telemetry
