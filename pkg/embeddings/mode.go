package embeddings

import "fmt"

// Mode selects how Open behaves with respect to an existing file at Path.
type Mode int

const (
	// ModeRead opens an existing file read-only. The file must exist.
	ModeRead Mode = iota

	// ModeAppend opens an existing file for read+append. The file must
	// exist.
	ModeAppend

	// ModeAppendOrCreate opens for read+append, creating the file if it is
	// missing.
	ModeAppendOrCreate

	// ModeCreateAlways truncates/creates the file unconditionally, then
	// opens it for read+append.
	ModeCreateAlways
)

// String renders the mode using its wire-form token ("r", "a", "a+", "a++").
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeAppend:
		return "a"
	case ModeAppendOrCreate:
		return "a+"
	case ModeCreateAlways:
		return "a++"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the boundary's string form of a mode. See Mode's doc
// comment for the meaning of each token.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "r":
		return ModeRead, nil
	case "a":
		return ModeAppend, nil
	case "a+":
		return ModeAppendOrCreate, nil
	case "a++":
		return ModeCreateAlways, nil
	default:
		return 0, fmt.Errorf("%w: unknown open mode %q", ErrBadArg, s)
	}
}
