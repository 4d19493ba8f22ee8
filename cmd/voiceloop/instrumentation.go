package main

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/koscakluka/ema-voiceloop/cmd/voiceloop"

var logger = otelslog.NewLogger(scopeName)
