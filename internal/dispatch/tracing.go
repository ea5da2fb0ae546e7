package dispatch

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/mattjoyce/lockstep/internal/dispatch")
