package mapparser

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"daqcore/regcatalog"
)

// jsonRepresentation mirrors the JSON dialect's "representation" block,
// per spec.md §4.C.
type jsonRepresentation struct {
	Type           string `json:"type"`
	Width          int    `json:"width"`
	FractionalBits int    `json:"fractionalBits"`
	IsSigned       bool   `json:"isSigned"`
}

// jsonAddress mirrors the "address" block.
type jsonAddress struct {
	Type    string          `json:"type"` // IO or DMA
	Channel int             `json:"channel"`
	Offset  json.RawMessage `json:"offset"`
}

// jsonNode is one entry of the recursive addressSpace tree.
type jsonNode struct {
	Address              *jsonAddress        `json:"address,omitempty"`
	Representation       *jsonRepresentation `json:"representation,omitempty"`
	NElements            int                 `json:"nElements,omitempty"`
	ElementPitchBits     int                 `json:"elementPitchBits,omitempty"`
	Access               string              `json:"access,omitempty"`
	TriggeredByInterrupt []int               `json:"triggeredByInterrupt,omitempty"`
	Channels             map[string]jsonNode `json:"channels,omitempty"`
	Children             map[string]jsonNode `json:"children,omitempty"`
}

type jsonDoc struct {
	AddressSpace     map[string]jsonNode        `json:"addressSpace"`
	Metadata         map[string]string          `json:"metadata"`
	InterruptHandler map[string]json.RawMessage `json:"interruptHandler"`
}

// ParseJSON parses the ".jmap" dialect from data.
func ParseJSON(data []byte, name string) (*regcatalog.Catalogue, error) {
	var doc jsonDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errJSON(name, "$", "invalid JSON: %s", err)
	}

	cat := regcatalog.New()
	for k, v := range doc.Metadata {
		cat.SetMetadata(k, v)
	}
	for key, name := range doc.AddressSpace {
		if err := walkJSONNode(cat, name, key, "$.addressSpace."+key); err != nil {
			return nil, err
		}
	}
	if err := flattenInterruptHandler(cat, doc.InterruptHandler, nil); err != nil {
		return nil, err
	}

	cat.Freeze()
	return cat, nil
}

func walkJSONNode(cat *regcatalog.Catalogue, n jsonNode, path, jsonPath string) error {
	if len(n.Children) > 0 {
		if n.Address != nil || len(n.Channels) > 0 {
			return errJSON("", jsonPath, "node %q has both children and a register body", path)
		}
		for key, child := range n.Children {
			if err := walkJSONNode(cat, child, path+"/"+key, jsonPath+".children."+key); err != nil {
				return err
			}
		}
		return nil
	}

	if n.Address == nil && len(n.TriggeredByInterrupt) == 0 {
		// A pure container node with no children and no register body:
		// nothing to register.
		return nil
	}
	if n.Address != nil && len(n.TriggeredByInterrupt) > 0 {
		return errJSON("", jsonPath, "register %q cannot have both an address and triggeredByInterrupt", path)
	}

	access, err := jsonAccess(n.Access, len(n.TriggeredByInterrupt) > 0)
	if err != nil {
		return err
	}

	var bar int
	var addr uint64
	if n.Address != nil {
		bar = n.Address.Channel
		addr, err = parseJSONOffset(n.Address.Offset)
		if err != nil {
			return errJSON("", jsonPath+".address.offset", "%s", err)
		}
	}

	channels, pitch, err := jsonChannels(n, jsonPath)
	if err != nil {
		return err
	}

	nElements := n.NElements
	if nElements == 0 {
		nElements = 1
	}
	elementPitchBits := n.ElementPitchBits
	if elementPitchBits == 0 {
		elementPitchBits = pitch
	}

	info := regcatalog.RegisterInfo{
		Path: path, NElements: nElements, ElementPitchBits: elementPitchBits,
		Bar: bar, Address: addr, Access: access, InterruptID: n.TriggeredByInterrupt,
		Channels: channels,
	}
	return cat.AddRegister(info)
}

// jsonChannels builds the ChannelInfo slice for n: either the single
// "representation" block (scalar/1-D) or the "channels" map (2-D
// multiplexed, keyed by numeric channel index).
func jsonChannels(n jsonNode, jsonPath string) ([]regcatalog.ChannelInfo, int, error) {
	if len(n.Channels) > 0 {
		maxIdx := -1
		idxOf := map[int]jsonNode{}
		for k, v := range n.Channels {
			i, err := strconv.Atoi(k)
			if err != nil {
				return nil, 0, errJSON("", jsonPath+".channels."+k, "channel key must be a numeric index")
			}
			idxOf[i] = v
			if i > maxIdx {
				maxIdx = i
			}
		}
		channels := make([]regcatalog.ChannelInfo, maxIdx+1)
		offsetBits := 0
		for i := 0; i <= maxIdx; i++ {
			v, ok := idxOf[i]
			if !ok {
				return nil, 0, errJSON("", jsonPath+".channels", "missing channel index %d", i)
			}
			if v.Representation == nil {
				return nil, 0, errJSON("", fmt.Sprintf("%s.channels.%d", jsonPath, i), "channel is missing a representation block")
			}
			ch, err := representationToChannel(*v.Representation, offsetBits)
			if err != nil {
				return nil, 0, err
			}
			channels[i] = ch
			offsetBits += ch.RawType
		}
		return channels, offsetBits, nil
	}

	if n.Representation == nil {
		return nil, 0, errJSON("", jsonPath, "register has neither a representation nor a channels block")
	}
	ch, err := representationToChannel(*n.Representation, 0)
	if err != nil {
		return nil, 0, err
	}
	return []regcatalog.ChannelInfo{ch}, ch.RawType, nil
}

func representationToChannel(r jsonRepresentation, bitOffset int) (regcatalog.ChannelInfo, error) {
	dt, err := parseDataType(orDefault(r.Type, "FIXED_POINT"))
	if err != nil {
		return regcatalog.ChannelInfo{}, err
	}
	rawType := ((r.Width + 7) / 8) * 8
	if rawType == 0 {
		rawType = 8
	}
	return regcatalog.ChannelInfo{
		BitOffset: bitOffset, DataType: dt, Width: r.Width,
		NFractionalBits: r.FractionalBits, Signed: r.IsSigned, RawType: rawType,
	}, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func jsonAccess(s string, isInterrupt bool) (regcatalog.Access, error) {
	if isInterrupt {
		return regcatalog.Interrupt, nil
	}
	if s == "" {
		return regcatalog.ReadWrite, nil
	}
	return parseAccess(s)
}

// parseJSONOffset accepts either a decimal JSON number or a hex string
// ("0x...") for an address offset, per spec.md §4.C.
func parseJSONOffset(raw json.RawMessage) (uint64, error) {
	var asNumber int64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return uint64(asNumber), nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return parseUintAny(asString)
	}
	return 0, fmt.Errorf("offset must be a decimal integer or hex string, got %q", string(raw))
}

func parseUintAny(s string) (uint64, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseUint(s[2:], 16, 64)
	}
	return strconv.ParseUint(s, 10, 64)
}

// flattenInterruptHandler walks the interruptHandler tree, which is keyed
// level-by-level by the decimal interrupt-id component, and records one
// metadata entry per leaf, keyed by the canonical "!a:b:c" interrupt path
// (spec.md §4.C: "flattened into metadata entries keyed by the
// JSON-encoded interrupt path").
func flattenInterruptHandler(cat *regcatalog.Catalogue, tree map[string]json.RawMessage, prefix []int) error {
	for key, raw := range tree {
		id, err := strconv.Atoi(key)
		if err != nil {
			return errJSON("", "$.interruptHandler", "interrupt path component %q is not an integer", key)
		}
		path := append(append([]int(nil), prefix...), id)

		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil && isAllNumericKeys(nested) {
			if err := flattenInterruptHandler(cat, nested, path); err != nil {
				return err
			}
			continue
		}
		cat.SetMetadata(regcatalog.InterruptPath(path), string(raw))
	}
	return nil
}

func isAllNumericKeys(m map[string]json.RawMessage) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if _, err := strconv.Atoi(k); err != nil {
			return false
		}
	}
	return true
}
