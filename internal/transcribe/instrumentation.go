package transcribe

import "go.opentelemetry.io/otel"

const scopeName = "github.com/ashureev/chatcord/internal/transcribe"

var tracer = otel.Tracer(scopeName)
