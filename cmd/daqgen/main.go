// Command daqgen is the build-time entry point of spec.md §6: instead of
// running, it emits a description of every register of a register map as a
// control-system-visible variable — name, direction, value type, length —
// without opening any backend. The unit and description fields are never
// filled in, so they are left out of the output.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"daqcore/internal/logx"
	"daqcore/mapparser"
	"daqcore/regcatalog"
)

// variableDescription is one row of daqgen's output: the control-system
// adapter contract's createProcessScalar/createProcessArray arguments
// plus the descriptive metadata spec.md §6 names.
type variableDescription struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	ValueType string `json:"valueType"`
	Length    int    `json:"length"`
	Unit      string `json:"unit,omitempty"`
	Description string `json:"description,omitempty"`
}

func main() {
	os.Exit(run())
}

func run() int {
	mapFile := pflag.String("map-file", "", "path to the register map file (.map or .jmap)")
	pflag.Parse()

	log := logx.For("daqgen")
	if *mapFile == "" {
		log.Error().Msg("-map-file is required")
		return 2
	}

	catalogue, err := mapparser.ParseFile(*mapFile)
	if err != nil {
		log.Error().Err(err).Str("file", *mapFile).Msg("parsing register map")
		return 2
	}

	var vars []variableDescription
	for _, path := range catalogue.RegisterPaths() {
		info, err := catalogue.GetBackendRegister(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("resolving register")
			return 2
		}
		vars = append(vars, describeRegister(info))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(vars); err != nil {
		log.Error().Err(err).Msg("encoding variable description")
		return 2
	}
	return 0
}

func describeRegister(info regcatalog.RegisterInfo) variableDescription {
	direction := "consuming"
	if info.Access.Writable() {
		direction = "feeding"
	}
	valueType := "float64"
	if len(info.Channels) == 1 && info.Channels[0].NFractionalBits == 0 {
		valueType = fmt.Sprintf("int%d", nextPow2Width(info.Channels[0].Width))
	}
	return variableDescription{
		Name:      info.Path,
		Direction: direction,
		ValueType: valueType,
		Length:    info.NElements,
	}
}

func nextPow2Width(width int) int {
	for _, w := range []int{8, 16, 32, 64} {
		if width <= w {
			return w
		}
	}
	return 64
}
