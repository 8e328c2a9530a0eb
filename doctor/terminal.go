package doctor

import (
	"os"

	"golang.org/x/term"
)

// saveTerminal records the terminal mode so a speech or audio backend that
// leaves it raw cannot break the y/n prompts. The returned func restores it.
func saveTerminal() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.GetState(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, state) }
}
