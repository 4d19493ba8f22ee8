package polly

import "go.opentelemetry.io/otel"

const scopeName = "github.com/koscakluka/ema-voiceloop/core/texttospeech/polly"

var tracer = otel.Tracer(scopeName)
