package daide

import (
	"fmt"
	"strings"

	"github.com/freeeve/backstab/pkg/diplomacy"
)

// Press is free text carried between powers. The server transports it
// without interpretation.
type Press struct {
	From diplomacy.Power
	To   []diplomacy.Power
	Body string
}

// SndMessage builds SND (to...) (press text) as sent by a client.
func SndMessage(p Press) (Message, error) {
	tokens := []Token{SND}
	var tos []Token
	for _, to := range p.To {
		t, ok := PowerToken(to)
		if !ok {
			return Message{}, fmt.Errorf("daide: unknown power %q", to)
		}
		tos = append(tos, t)
	}
	tokens = append(tokens, group(tos...)...)
	tokens = append(tokens, group(TextTokens(p.Body)...)...)
	return Diplomacy(tokens...), nil
}

// FrmMessage builds FRM (from) (to...) (press text) as relayed by the
// server.
func FrmMessage(p Press) (Message, error) {
	from, ok := PowerToken(p.From)
	if !ok {
		return Message{}, fmt.Errorf("daide: unknown power %q", p.From)
	}
	tokens := []Token{FRM}
	tokens = append(tokens, group(from)...)
	var tos []Token
	for _, to := range p.To {
		t, ok := PowerToken(to)
		if !ok {
			return Message{}, fmt.Errorf("daide: unknown power %q", to)
		}
		tos = append(tos, t)
	}
	tokens = append(tokens, group(tos...)...)
	tokens = append(tokens, group(TextTokens(p.Body)...)...)
	return Diplomacy(tokens...), nil
}

// ParseSnd decodes a SND message body.
func ParseSnd(tokens []Token) (Press, error) {
	if len(tokens) == 0 || tokens[0] != SND {
		return Press{}, fmt.Errorf("daide: not a SND message")
	}
	groups, err := splitGroups(tokens[1:])
	if err != nil {
		return Press{}, err
	}
	if len(groups) < 2 {
		return Press{}, fmt.Errorf("daide: short SND message")
	}
	var p Press
	for _, t := range groups[0] {
		power, ok := TokenPower(t)
		if !ok {
			return Press{}, fmt.Errorf("daide: bad recipient token %v", t)
		}
		p.To = append(p.To, power)
	}
	p.Body = textOf(groups[1])
	return p, nil
}

// ParseFrm decodes a FRM message body.
func ParseFrm(tokens []Token) (Press, error) {
	if len(tokens) == 0 || tokens[0] != FRM {
		return Press{}, fmt.Errorf("daide: not a FRM message")
	}
	groups, err := splitGroups(tokens[1:])
	if err != nil {
		return Press{}, err
	}
	if len(groups) < 3 {
		return Press{}, fmt.Errorf("daide: short FRM message")
	}
	var p Press
	if len(groups[0]) != 1 {
		return Press{}, fmt.Errorf("daide: bad FRM sender clause")
	}
	from, ok := TokenPower(groups[0][0])
	if !ok {
		return Press{}, fmt.Errorf("daide: bad sender token %v", groups[0][0])
	}
	p.From = from
	for _, t := range groups[1] {
		power, ok := TokenPower(t)
		if !ok {
			return Press{}, fmt.Errorf("daide: bad recipient token %v", t)
		}
		p.To = append(p.To, power)
	}
	p.Body = textOf(groups[2])
	return p, nil
}

func textOf(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		if t.IsText() {
			b.WriteByte(t.Char())
		}
	}
	return b.String()
}
