// ABOUTME: Minimal flag parsing shared by all subcommands
// ABOUTME: Accepts "--flag value", "--flag=value" and bare boolean switches

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// flagSet maps flag names (without dashes) to the destinations they fill.
type flagSet struct {
	strings map[string]*string
	bools   map[string]*bool
}

func newFlagSet() *flagSet {
	return &flagSet{strings: map[string]*string{}, bools: map[string]*bool{}}
}

func (f *flagSet) String(name string) *string {
	v := new(string)
	f.strings[name] = v
	return v
}

func (f *flagSet) Bool(name string) *bool {
	v := new(bool)
	f.bools[name] = v
	return v
}

// Parse fills the registered flags from args. Positional arguments are rejected.
func (f *flagSet) Parse(args []string) error {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return fmt.Errorf("unexpected argument: %s", arg)
		}
		name := strings.TrimLeft(arg, "-")
		value, hasValue := "", false
		if k, v, ok := strings.Cut(name, "="); ok {
			name, value, hasValue = k, v, true
		}

		if dst, ok := f.bools[name]; ok {
			if hasValue {
				switch strings.ToLower(value) {
				case "true", "1", "yes":
					*dst = true
				case "false", "0", "no":
					*dst = false
				default:
					return fmt.Errorf("--%s expects a boolean, got %q", name, value)
				}
			} else {
				*dst = true
			}
			continue
		}

		dst, ok := f.strings[name]
		if !ok {
			return fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		*dst = value
	}
	return nil
}

// required returns an error naming the first empty flag.
func (f *flagSet) required(names ...string) error {
	for _, name := range names {
		if dst, ok := f.strings[name]; ok && strings.TrimSpace(*dst) == "" {
			return fmt.Errorf("--%s flag is required", name)
		}
	}
	return nil
}

// readPassword returns flagValue, else $COVEN_IDENTITY_PASSWORD, else a line from stdin.
func readPassword(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("COVEN_IDENTITY_PASSWORD"); env != "" {
		return env, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
