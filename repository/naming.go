// Package repository parses journal file basenames into their origin and
// lifecycle state, and orders a directory's files into the chain the core
// relies on for time-range queries.
package repository

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/netdata/journal/errs"
)

// Origin identifies who wrote a journal file.
type Origin uint8

const (
	OriginSystem Origin = iota
	OriginUser
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginSystem:
		return "system"
	case OriginUser:
		return "user"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// State is a file's lifecycle stage, also its sort priority within a chain:
// disposed sorts first, then archived ascending by head realtime, then
// active last.
type State uint8

const (
	StateDisposed State = iota
	StateArchived
	StateActive
)

// Name is a parsed journal file basename.
type Name struct {
	Origin Origin
	UID    uint32 // OriginUser only
	Host   string // OriginRemote only
	State  State

	SeqnumIDHex      string // archived only
	HeadSeqnumHex    string // archived only
	HeadRealtimeHex  string // archived only
	DisposedTSHex    string // disposed only
	DisposedSeqHex   string // disposed only

	HeadRealtime uint64 // decoded from HeadRealtimeHex, archived only
}

// Parse decodes a journal file basename into its Name, per the grammar:
//
//	system.journal
//	system@<seqnum-id>-<head-seqnum-hex>-<head-realtime-usec-hex>.journal
//	system@<ts-hex>-<n-hex>.journal~
//
// and the user-<uid>/remote-<host> equivalents.
func Parse(basename string) (Name, error) {
	disposed := strings.HasSuffix(basename, "~")
	trimmed := strings.TrimSuffix(basename, "~")
	trimmed = strings.TrimSuffix(trimmed, ".journal")

	var n Name
	if disposed {
		n.State = StateDisposed
	}

	rest, origin, err := splitOrigin(trimmed)
	if err != nil {
		return Name{}, err
	}
	n.Origin = origin

	switch origin {
	case OriginUser:
		uid, tag, err := splitTag(rest, "user-")
		if err != nil {
			return Name{}, err
		}
		v, err := strconv.ParseUint(uid, 10, 32)
		if err != nil {
			return Name{}, errs.NewFormatError("parse journal file name", 0, errs.ErrInvalidFieldPrefix)
		}
		n.UID = uint32(v)
		rest = tag
	case OriginRemote:
		host, tag, err := splitTag(rest, "remote-")
		if err != nil {
			return Name{}, err
		}
		n.Host = host
		rest = tag
	case OriginSystem:
		rest = strings.TrimPrefix(rest, "system")
	}

	rest = strings.TrimPrefix(rest, "@")
	if rest == "" {
		n.State = StateActive
		return n, nil
	}

	if disposed {
		parts := strings.SplitN(rest, "-", 2)
		if len(parts) != 2 {
			return Name{}, errs.NewFormatError("parse disposed journal file name", 0, errs.ErrInvalidFieldPrefix)
		}
		n.DisposedTSHex, n.DisposedSeqHex = parts[0], parts[1]
		return n, nil
	}

	parts := strings.SplitN(rest, "-", 3)
	if len(parts) != 3 {
		return Name{}, errs.NewFormatError("parse archived journal file name", 0, errs.ErrInvalidFieldPrefix)
	}
	n.State = StateArchived
	n.SeqnumIDHex, n.HeadSeqnumHex, n.HeadRealtimeHex = parts[0], parts[1], parts[2]

	realtime, err := strconv.ParseUint(n.HeadRealtimeHex, 16, 64)
	if err != nil {
		return Name{}, errs.NewFormatError("parse archived journal file name", 0, errs.ErrInvalidFieldPrefix)
	}
	n.HeadRealtime = realtime

	return n, nil
}

func splitOrigin(s string) (rest string, origin Origin, err error) {
	switch {
	case strings.HasPrefix(s, "system"):
		return s, OriginSystem, nil
	case strings.HasPrefix(s, "user-"):
		return s, OriginUser, nil
	case strings.HasPrefix(s, "remote-"):
		return s, OriginRemote, nil
	default:
		return "", 0, errs.NewFormatError("parse journal file name", 0, errs.ErrInvalidFieldPrefix)
	}
}

// splitTag strips prefix and returns (tag-value, remaining-suffix-with-@-or-empty).
func splitTag(s, prefix string) (tag, rest string, err error) {
	s = strings.TrimPrefix(s, prefix)
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		return s[:idx], s[idx:], nil
	}
	return s, "", nil
}

// Format renders n back into its canonical basename.
func (n Name) Format() string {
	var base string
	switch n.Origin {
	case OriginUser:
		base = fmt.Sprintf("user-%d", n.UID)
	case OriginRemote:
		base = fmt.Sprintf("remote-%s", n.Host)
	default:
		base = "system"
	}

	switch n.State {
	case StateActive:
		return base + ".journal"
	case StateArchived:
		return fmt.Sprintf("%s@%s-%s-%s.journal", base, n.SeqnumIDHex, n.HeadSeqnumHex, n.HeadRealtimeHex)
	case StateDisposed:
		return fmt.Sprintf("%s@%s-%s.journal~", base, n.DisposedTSHex, n.DisposedSeqHex)
	default:
		return base + ".journal"
	}
}
