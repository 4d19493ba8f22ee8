package input

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voiceloop/internal/input"

var logger = otelslog.NewLogger(scopeName)
