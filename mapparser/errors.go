package mapparser

import (
	"fmt"

	"daqcore/internal/errs"
)

const op = "mapparser"

func errLine(file string, line int, format string, args ...any) error {
	msg := fmt.Sprintf("%s:%d: %s", file, line, fmt.Sprintf(format, args...))
	return errs.Logic(op, errs.CodeMalformedMapFile, msg)
}

func errJSON(file, jsonPath string, format string, args ...any) error {
	msg := fmt.Sprintf("%s at %s: %s", file, jsonPath, fmt.Sprintf(format, args...))
	return errs.Logic(op, errs.CodeMalformedMapFile, msg)
}
