// Package telemetry provides observability for the recipe engine.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an event publisher into one Telemetry value
// built from a Config:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
// Library packages accept a zerolog.Logger; obtain one with
// tel.Logger.NewComponentLogger("media_handler").Zerolog(). Engine
// entries carry execution_id, step and position fields.
//
// # Tracing
//
// Each dispatched step gets a "recipe.step" span and each driver run a
// "recipe.execution" span. Supported exporters are otlp, stdout and none.
// A nil *Tracer starts non-recording spans.
//
// # Metrics
//
// Metrics live in a private registry and are served by Metrics.Server:
//
//	recipes_steps_executed_total{step,status}
//	recipes_step_duration_seconds{step}
//	recipes_steps_drained_total
//	recipes_executions_submitted_total{source}
//	recipes_executions_completed_total{status}
//	recipes_execution_duration_seconds{status}
//	recipes_active_executions
//	recipes_errors_total{kind}
//	recipes_inbox_files_total{result}
//	recipes_deployments_total{target,result}
//
// A nil or disabled *Metrics ignores every Record call.
//
// # Events
//
// EventPublisher delivers Events to subscribers in publish order, either
// inline or from a background goroutine. It also satisfies the executor's
// event sink methods, so step progress can be streamed to subscribers.
package telemetry
