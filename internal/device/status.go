package device

import (
	"regexp"
	"strings"
)

// Code is a decoded register status code (the hex token embedded in the
// firmware's human-readable register strings).
type Code string

// Known register codes. Values are reproduced bit-for-bit from the firmware.
const (
	CodeUnknown      Code = ""
	CodeReadyToCount Code = "0x07" // SR2: ready to count
	CodeStandBy      Code = "0x04" // SR2: stand by
	CodeLoginMode    Code = "0x00" // S2: login mode
	CodeCounting     Code = "0x41" // SR2: counting in progress
)

// escrowDoorClosedText is the S1 description substring marking a closed
// escrow door. Firmware compatibility, do not localize.
const escrowDoorClosedText = "Escrow door closed"

var codePattern = regexp.MustCompile(`0[xX][0-9A-Fa-f]+`)

// Register is one decoded status register.
type Register struct {
	Raw         string `json:"raw"`
	Code        Code   `json:"code"`
	Description string `json:"description"`
}

// Status is an immutable snapshot of the device's status registers, decoded
// once at the poller boundary. Downstream predicates compare decoded values,
// never raw substrings. A snapshot is never merged with an earlier one.
type Status struct {
	S1  Register `json:"s1"`
	S2  Register `json:"s2"`
	SR2 Register `json:"sr2"`
	D2  Register `json:"d2"`

	// EscrowDoorClosed is derived from the S1 description at decode time.
	EscrowDoorClosed bool `json:"escrow_door_closed"`
}

// ParseRegister decodes one raw register string. Decoding is pure and total:
// any input yields exactly one code and one description, with unknown or
// absent values mapping to CodeUnknown.
func ParseRegister(raw string) Register {
	reg := Register{Raw: raw, Code: CodeUnknown}

	token := codePattern.FindString(raw)
	if token != "" {
		// Normalize the hex token so 0X07 and 0x07 compare equal.
		reg.Code = Code("0x" + strings.ToLower(token[2:]))
	}

	desc := strings.TrimSpace(strings.Replace(raw, token, "", 1))
	desc = strings.Trim(desc, "-: ")
	reg.Description = desc

	return reg
}

// decodeStatus builds a Status from a raw sense payload.
func decodeStatus(resp *senseResponse) *Status {
	get := func(name string) string {
		if resp.Interpretation != nil {
			if v, ok := resp.Interpretation[name]; ok {
				return v
			}
		}
		// Older firmware only reports SR2 at the top level.
		if name == "SR2" {
			return resp.SR2
		}
		return ""
	}

	st := &Status{
		S1:  ParseRegister(get("S1")),
		S2:  ParseRegister(get("S2")),
		SR2: ParseRegister(get("SR2")),
		D2:  ParseRegister(get("D2")),
	}
	st.EscrowDoorClosed = strings.Contains(st.S1.Raw, escrowDoorClosedText)

	return st
}

// ReadyToCount reports whether the device is ready for a count cycle.
func (s *Status) ReadyToCount() bool {
	return s.SR2.Code == CodeReadyToCount
}

// StandBy reports whether the device is in stand-by.
func (s *Status) StandBy() bool {
	return s.SR2.Code == CodeStandBy
}

// LoginMode reports whether the device session returned to login mode.
func (s *Status) LoginMode() bool {
	return s.S2.Code == CodeLoginMode
}

// CountingInProgress reports whether a count cycle is running.
func (s *Status) CountingInProgress() bool {
	return s.SR2.Code == CodeCounting
}

// Idle reports end-of-count-or-idle: stand-by or ready for the next cycle.
func (s *Status) Idle() bool {
	return s.StandBy() || s.ReadyToCount()
}

// CancelComplete reports the fully cancelled state: stand-by plus login mode.
func (s *Status) CancelComplete() bool {
	return s.StandBy() && s.LoginMode()
}
