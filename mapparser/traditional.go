// Package mapparser parses the two device map-file dialects spec.md §4.C
// and §6 describe (traditional line-oriented and JSON) into a
// regcatalog.Catalogue. Dialect is selected by filename extension: ".jmap"
// selects JSON, anything else selects the traditional dialect.
package mapparser

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"daqcore/rawconv"
	"daqcore/regcatalog"
)

// areaPrefix and its new-style equivalent introduce a 2-D register whose
// per-channel description comes from sibling lines.
const (
	areaPrefix        = "AREA_MULTIPLEXED_SEQUENCE_"
	areaPrefixNewStyle = "MEM_MULTIPLEXED_"
	sequencePrefix    = "SEQUENCE_"
)

// ParseTraditional parses the line-oriented dialect from r. name is used
// only to annotate errors with a location (typically the source path).
func ParseTraditional(r io.Reader, name string) (*regcatalog.Catalogue, error) {
	cat := regcatalog.New()
	lines, err := readTraditionalLines(r, name, cat)
	if err != nil {
		return nil, err
	}

	areas := map[string]*areaBuilder{}
	var areaOrder []string
	var scalars []traditionalLine

	for _, ln := range lines {
		if areaName, ok := stripAreaPrefix(ln.path); ok {
			a := areas[areaName]
			if a == nil {
				a = &areaBuilder{name: areaName, header: ln}
				areas[areaName] = a
				areaOrder = append(areaOrder, areaName)
			} else {
				a.header = ln
			}
			continue
		}
		if areaName, idx, ok := stripSequencePrefix(ln.path); ok {
			a := areas[areaName]
			if a == nil {
				a = &areaBuilder{name: areaName}
				areas[areaName] = a
				areaOrder = append(areaOrder, areaName)
			}
			a.addChannel(idx, ln)
			continue
		}
		scalars = append(scalars, ln)
	}

	for _, ln := range scalars {
		info, err := ln.toScalarRegisterInfo()
		if err != nil {
			return nil, err
		}
		if err := cat.AddRegister(info); err != nil {
			return nil, err
		}
	}
	for _, name := range areaOrder {
		info, err := areas[name].build()
		if err != nil {
			return nil, err
		}
		if err := cat.AddRegister(info); err != nil {
			return nil, err
		}
	}

	cat.Freeze()
	return cat, nil
}

// traditionalLine is one parsed, not-yet-validated register line.
type traditionalLine struct {
	file   string
	lineNo int

	path        string
	nElements   int
	address     uint64
	nBytes      int
	bar         int
	width       int
	nFracBits   int
	signed      bool
	access      regcatalog.Access
	dataType    rawconv.DataType
	interruptID []int
}

func stripAreaPrefix(path string) (string, bool) {
	if strings.HasPrefix(path, areaPrefix) {
		return strings.TrimPrefix(path, areaPrefix), true
	}
	if strings.HasPrefix(path, areaPrefixNewStyle) {
		return strings.TrimPrefix(path, areaPrefixNewStyle), true
	}
	return "", false
}

// stripSequencePrefix recognises "SEQUENCE_<name>_<i>" and returns (name,
// i, true).
func stripSequencePrefix(path string) (string, int, bool) {
	if !strings.HasPrefix(path, sequencePrefix) {
		return "", 0, false
	}
	rest := strings.TrimPrefix(path, sequencePrefix)
	idx := strings.LastIndexByte(rest, '_')
	if idx < 0 {
		return "", 0, false
	}
	name, idxStr := rest[:idx], rest[idx+1:]
	i, err := strconv.Atoi(idxStr)
	if err != nil {
		return "", 0, false
	}
	return name, i, true
}

func readTraditionalLines(r io.Reader, file string, cat *regcatalog.Catalogue) ([]traditionalLine, error) {
	var out []traditionalLine
	seen := map[string]int{}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		if strings.HasPrefix(raw, "@") {
			key, value, ok := strings.Cut(strings.TrimPrefix(raw, "@"), " ")
			if !ok {
				return nil, errLine(file, lineNo, "malformed metadata line %q", raw)
			}
			cat.SetMetadata(strings.TrimSpace(key), strings.TrimSpace(value))
			continue
		}

		tokens, err := shlex.Split(raw)
		if err != nil || len(tokens) < 5 {
			return nil, errLine(file, lineNo, "malformed register line %q", raw)
		}

		ln, err := parseTraditionalTokens(tokens)
		if err != nil {
			return nil, errLine(file, lineNo, "%s", err)
		}
		ln.file = file
		ln.lineNo = lineNo

		if prev, dup := seen[ln.path]; dup {
			return nil, errLine(file, lineNo, "duplicate register path %q (first seen on line %d)", ln.path, prev)
		}
		seen[ln.path] = lineNo
		out = append(out, ln)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// parseTraditionalTokens parses the fixed+optional token sequence:
//
//	path nElems address nBytes bar [width [nFracBits [signed [access [type [interruptId]]]]]]
func parseTraditionalTokens(tok []string) (traditionalLine, error) {
	ln := traditionalLine{
		width: 32, nFracBits: 0, signed: true, access: regcatalog.ReadWrite, dataType: rawconv.FixedPoint,
	}
	ln.path = tok[0]

	var err error
	if ln.nElements, err = strconv.Atoi(tok[1]); err != nil {
		return ln, errField("nElements", tok[1])
	}
	if ln.address, err = parseUintToken(tok[2]); err != nil {
		return ln, errField("address", tok[2])
	}
	if ln.nBytes, err = strconv.Atoi(tok[3]); err != nil {
		return ln, errField("nBytes", tok[3])
	}
	if ln.bar, err = strconv.Atoi(tok[4]); err != nil {
		return ln, errField("bar", tok[4])
	}

	if len(tok) > 5 {
		if ln.width, err = strconv.Atoi(tok[5]); err != nil {
			return ln, errField("width", tok[5])
		}
	}
	if len(tok) > 6 {
		if ln.nFracBits, err = strconv.Atoi(tok[6]); err != nil {
			return ln, errField("nFractionalBits", tok[6])
		}
	}
	if len(tok) > 7 {
		ln.signed = tok[7] == "1" || strings.EqualFold(tok[7], "true")
	}
	if len(tok) > 8 {
		acc, err := parseAccess(tok[8])
		if err != nil {
			return ln, err
		}
		ln.access = acc
	}
	if len(tok) > 9 {
		dt, err := parseDataType(tok[9])
		if err != nil {
			return ln, err
		}
		ln.dataType = dt
	}
	if len(tok) > 10 {
		id, err := parseInterruptID(tok[10])
		if err != nil {
			return ln, err
		}
		ln.interruptID = id
	}
	return ln, nil
}

func (ln traditionalLine) toScalarRegisterInfo() (regcatalog.RegisterInfo, error) {
	pitch := ln.nBytes * 8
	if ln.nElements > 0 {
		pitch = ln.nBytes * 8 / maxInt(ln.nElements, 1)
	}
	info := regcatalog.RegisterInfo{
		Path: ln.path, NElements: ln.nElements, ElementPitchBits: pitch,
		Bar: ln.bar, Address: ln.address, Access: ln.access, InterruptID: ln.interruptID,
		Channels: []regcatalog.ChannelInfo{{
			BitOffset: 0, DataType: ln.dataType, Width: ln.width,
			NFractionalBits: ln.nFracBits, Signed: ln.signed, RawType: ln.nBytes * 8,
		}},
	}
	return info, nil
}

// areaBuilder accumulates one 2-D multiplexed register from its
// AREA_MULTIPLEXED_SEQUENCE_ header line and SEQUENCE_<name>_<i> channel
// lines.
type areaBuilder struct {
	name     string
	header   traditionalLine
	hasHead  bool
	channels map[int]traditionalLine
	maxIdx   int
}

func (a *areaBuilder) addChannel(idx int, ln traditionalLine) {
	if a.channels == nil {
		a.channels = map[int]traditionalLine{}
	}
	a.channels[idx] = ln
	if idx > a.maxIdx {
		a.maxIdx = idx
	}
}

// build assembles the merged 2-D RegisterInfo. The header line's nElements
// is the number of samples per channel; its nBytes is the total byte
// pitch of one element row (elementPitchBits/8). Each SEQUENCE_<name>_<i>
// line reuses its "address" field as the channel's byte offset within the
// pitch and its "nBytes" field as the channel's raw width in bytes; the
// optional width/nFracBits/signed/type fields describe the channel's
// bit-level encoding exactly as in the scalar case.
func (a *areaBuilder) build() (regcatalog.RegisterInfo, error) {
	if a.header.lineNo == 0 {
		return regcatalog.RegisterInfo{}, errLine("", 0,
			"multiplexed area %q has SEQUENCE_ channel lines but no AREA_MULTIPLEXED_SEQUENCE_/MEM_MULTIPLEXED_ header", a.name)
	}
	if len(a.channels) == 0 {
		return regcatalog.RegisterInfo{}, errLine(a.header.file, a.header.lineNo,
			"multiplexed area %q has a header but no SEQUENCE_ channel lines", a.name)
	}
	channels := make([]regcatalog.ChannelInfo, a.maxIdx+1)
	for i := 0; i <= a.maxIdx; i++ {
		ch, ok := a.channels[i]
		if !ok {
			return regcatalog.RegisterInfo{}, errLine(a.header.file, a.header.lineNo,
				"multiplexed area %q is missing channel index %d", a.name, i)
		}
		channels[i] = regcatalog.ChannelInfo{
			BitOffset: int(ch.address) * 8, DataType: ch.dataType, Width: ch.width,
			NFractionalBits: ch.nFracBits, Signed: ch.signed, RawType: ch.nBytes * 8,
		}
	}
	minPitch := channels[len(channels)-1].BitOffset + channels[len(channels)-1].RawType
	pitch := a.header.nBytes * 8
	if pitch < minPitch {
		pitch = minPitch
	}
	nElements := a.header.nElements
	bar := a.header.bar
	addr := a.header.address
	return regcatalog.RegisterInfo{
		Path: a.name, NElements: nElements, ElementPitchBits: pitch,
		Bar: bar, Address: addr, Access: regcatalog.ReadWrite, Channels: channels,
	}, nil
}

func parseUintToken(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseAccess(s string) (regcatalog.Access, error) {
	switch strings.ToUpper(s) {
	case "RO":
		return regcatalog.ReadOnly, nil
	case "WO":
		return regcatalog.WriteOnly, nil
	case "RW":
		return regcatalog.ReadWrite, nil
	case "INTERRUPT":
		return regcatalog.Interrupt, nil
	default:
		return 0, errField("access", s)
	}
}

func parseDataType(s string) (rawconv.DataType, error) {
	switch strings.ToUpper(s) {
	case "FIXED_POINT":
		return rawconv.FixedPoint, nil
	case "IEEE754":
		return rawconv.IEEE754, nil
	case "ASCII":
		return rawconv.ASCII, nil
	default:
		return 0, errField("type", s)
	}
}

// parseInterruptID parses tokens of the form "INTERRUPT<a>[:<b>[...]]" or
// a bare colon-separated list, per spec.md §6.
func parseInterruptID(s string) ([]int, error) {
	s = strings.TrimPrefix(strings.ToUpper(s), "INTERRUPT")
	if s == "" {
		return nil, errField("interruptId", s)
	}
	parts := strings.Split(s, ":")
	id := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, errField("interruptId", s)
		}
		id[i] = n
	}
	return id, nil
}

func errField(field, value string) error {
	return fmt.Errorf("invalid %s %q", field, value)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
