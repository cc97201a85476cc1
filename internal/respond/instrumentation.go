package respond

import "go.opentelemetry.io/otel"

const scopeName = "github.com/ashureev/chatcord/internal/respond"

var tracer = otel.Tracer(scopeName)
