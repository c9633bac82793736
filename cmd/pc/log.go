package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
)

func init() {
	setupLog(os.Getenv("DEBUG"))
}

// setupLog reports the caller on every line; DEBUG=1 turns on debug
// output.  Server connections carry their own conn field.
func setupLog(debug string) {
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportCaller(true)
	log.SetFormatter(&log.TextFormatter{
		CallerPrettyfier: caller,
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
		TimestampFormat: "15:04:05.999999999",
	})
}

// caller formats a frame as file.go:line, dropping the function name.
func caller(f *runtime.Frame) (function string, file string) {
	return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
}
