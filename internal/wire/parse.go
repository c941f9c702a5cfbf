// Package wire parses the line protocol spoken by the sensor pods.
//
// Pods emit newline-terminated text. Two line shapes are recognised:
//
//	S<id>                               registration announce
//	m<id> x=<n> y=<n> z=<n>             acceleration sample in milli-g
//
// Axis tokens are located by key so pods may emit them in any order.
// Anything else is reported as invalid and dropped at this boundary; ids
// outside 1..6 never reach the stream registry.
package wire

import (
	"math"
	"strconv"
	"strings"
)

// MaxStreamID is the highest pod id the bridge firmware will assign.
const MaxStreamID = 6

// Kind identifies the shape of a parsed line.
type Kind int

const (
	KindInvalid Kind = iota
	KindRegistration
	KindData
)

// Message is the result of parsing one line.
type Message struct {
	Kind Kind
	ID   int
	X    float64
	Y    float64
	Z    float64
}

// Invalid is the zero Message, returned for any unrecognised line.
var Invalid = Message{Kind: KindInvalid}

// Parse turns a raw line into a Message. It never fails; malformed input
// yields Invalid.
func Parse(line string) Message {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Invalid
	}

	head := fields[0]
	switch {
	case strings.HasPrefix(head, "S"):
		if len(fields) != 1 {
			return Invalid
		}
		id, ok := parseStreamID(head[1:])
		if !ok {
			return Invalid
		}
		return Message{Kind: KindRegistration, ID: id}

	case strings.HasPrefix(head, "m"):
		id, ok := parseStreamID(head[1:])
		if !ok {
			return Invalid
		}
		x, okX := axisValue(fields[1:], "x=")
		y, okY := axisValue(fields[1:], "y=")
		z, okZ := axisValue(fields[1:], "z=")
		if !okX || !okY || !okZ {
			return Invalid
		}
		return Message{Kind: KindData, ID: id, X: x, Y: y, Z: z}
	}

	return Invalid
}

func parseStreamID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 || id > MaxStreamID {
		return 0, false
	}
	return id, true
}

// axisValue scans tokens for the first one carrying the given key prefix and
// parses its value. Non-finite values are rejected here so the processors
// only ever see usable numbers.
func axisValue(tokens []string, key string) (float64, bool) {
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, key) {
			continue
		}
		v, err := strconv.ParseFloat(tok[len(key):], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	return 0, false
}
