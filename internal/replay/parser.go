package replay

import (
	"fmt"
	"strconv"
	"strings"
)

// lineKind discriminates parsed trace lines.
type lineKind uint8

const (
	lineInstr lineKind = iota
	lineLoad
	lineStore
	lineModify
	lineCommand
	lineStackLow
)

// traceLine is one parsed event or directive.
type traceLine struct {
	Kind   lineKind
	Addr   uintptr
	Size   int
	Cmd    string // opcode name for lineCommand
	IntArg int32
	PtrArg uintptr
}

// TraceError is a parse failure with its position in the trace.
type TraceError struct {
	File    string
	Line    int
	Message string
}

// Error formats as file:line: message.
func (e *TraceError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

// parseLine parses one trace line. ok is false for blank lines and
// comments.
func parseLine(s string) (ln traceLine, ok bool, err error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return ln, false, nil
	}

	switch fields[0] {
	case "I", "L", "S", "M":
		if len(fields) != 2 {
			return ln, false, fmt.Errorf("%s event wants one addr,size operand", fields[0])
		}
		addr, size, perr := parseAddrSize(fields[1])
		if perr != nil {
			return ln, false, perr
		}
		switch fields[0] {
		case "I":
			ln.Kind = lineInstr
		case "L":
			ln.Kind = lineLoad
		case "S":
			ln.Kind = lineStore
		case "M":
			ln.Kind = lineModify
		}
		ln.Addr, ln.Size = addr, size
		return ln, true, nil

	case "C":
		if len(fields) < 2 {
			return ln, false, fmt.Errorf("C directive wants an opcode")
		}
		ln.Kind = lineCommand
		ln.Cmd = fields[1]
		if len(fields) >= 3 {
			if ln.Cmd == "stackbot" {
				p, perr := parseAddr(fields[2])
				if perr != nil {
					return ln, false, perr
				}
				ln.PtrArg = p
			} else {
				v, perr := strconv.ParseInt(fields[2], 0, 32)
				if perr != nil {
					return ln, false, fmt.Errorf("bad %s argument %q", ln.Cmd, fields[2])
				}
				ln.IntArg = int32(v)
			}
		}
		return ln, true, nil

	case "T":
		if len(fields) != 2 {
			return ln, false, fmt.Errorf("T directive wants a stack-low address")
		}
		addr, perr := parseAddr(fields[1])
		if perr != nil {
			return ln, false, perr
		}
		ln.Kind = lineStackLow
		ln.Addr = addr
		return ln, true, nil
	}
	return ln, false, fmt.Errorf("unknown trace record %q", fields[0])
}

// parseAddrSize parses the "addr,size" operand of an event line.
func parseAddrSize(s string) (uintptr, int, error) {
	addrStr, sizeStr, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, fmt.Errorf("operand %q wants addr,size", s)
	}
	addr, err := parseAddr(addrStr)
	if err != nil {
		return 0, 0, err
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size < 1 {
		return 0, 0, fmt.Errorf("bad access size %q", sizeStr)
	}
	return addr, size, nil
}

// parseAddr parses a hexadecimal address, 0x prefix optional.
func parseAddr(s string) (uintptr, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(t, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return uintptr(v), nil
}
