// Package instrumentation provides OpenTelemetry instrumentation for the token authority.
//
// It exposes a tracer and meter per layer ("authority", "http", "storage",
// "security") and a pre-built set of metric instruments.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "token-authority",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	ta.SetInstrumentation(inst)
//	store.SetInstrumentation(inst)
//
// When Enabled is false no-op providers are used and recording is free.
// Supply Config.MetricReader (for example an sdkmetric.ManualReader or a
// Prometheus/OTLP reader) to export metrics.
//
// # Available Metrics
//
// Grants:
//   - authority.grant.total{grant_type, result} - grant attempts by outcome
//   - authority.grant.duration{grant_type} - grant latency in milliseconds
//   - authority.session.lookups.total{result} - session resolutions
//
// HTTP Layer:
//   - authority.http.requests.total{method, endpoint, status}
//   - authority.http.request.duration{endpoint}
//
// Security:
//   - authority.rate_limit.exceeded{limiter_type}
//   - authority.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{operation, result}
//   - storage.operation.duration{operation}
//   - storage.clients.count, storage.users.count, storage.sessions.count
//
// # Security
//
// Never record credential values (secrets, passwords, access or refresh
// tokens) as span or metric attributes.
package instrumentation
