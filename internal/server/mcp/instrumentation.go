package mcp

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voiceloop/internal/server/mcp"

var logger = otelslog.NewLogger(scopeName)
