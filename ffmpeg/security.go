package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// The placeholder for the inspected file in the probe argument template
const InputMediaPlaceholder = "${INPUT_MEDIA}"

// SplitCommand splits a command string into arguments without involving a shell.
func SplitCommand(command string) ([]string, error) {
	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("invalid command syntax: %w", err)
	}
	return args, nil
}

// ValidateArgs requires exactly one input placeholder and rejects shell metacharacters.
func ValidateArgs(args []string) error {
	placeholders := 0
	for _, arg := range args {
		if arg == InputMediaPlaceholder {
			placeholders++
			continue
		}
		if strings.ContainsAny(arg, "|&;`$()<>") {
			return fmt.Errorf("disallowed character found in argument: %s", arg)
		}
	}

	switch placeholders {
	case 0:
		return fmt.Errorf("command must include the input placeholder '%s'", InputMediaPlaceholder)
	case 1:
		return nil
	default:
		return fmt.Errorf("command must include the input placeholder '%s' only once", InputMediaPlaceholder)
	}
}

// BindInput returns a copy of args with the placeholder replaced by path.
// path is substituted after splitting so spaces in it survive.
func BindInput(args []string, path string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == InputMediaPlaceholder {
			out[i] = path
			continue
		}
		out[i] = arg
	}
	return out
}
