package observability

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

const banner = `
   _____ __                        _
  / ___// /____  ____ _      __   (_)_______
  \__ \/ __/ _ \/ __ \ | /| / /  / / ___/ _ \
 ___/ / /_/  __/ /_/ / |/ |/ /  / (__  )  __/
/____/\__/\___/ .___/|__/|__/  /_/____/\___/
             /_/
`

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func termWidth(f *os.File) int {
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// PrintBanner writes the centered banner and usage hint. Colors are used only on terminals.
func PrintBanner(out *os.File) {
	width := termWidth(out)
	color := IsTerminal(out)

	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		line := strings.Repeat(" ", padding) + l
		if color {
			line = colorNeonCyan + line + colorReset
		}
		fmt.Fprintln(out, line)
	}
	writeHint(out, color)
}

func writeHint(w io.Writer, color bool) {
	hint := "Type your question and press Enter. Type 'exit' or 'quit' to leave."
	if color {
		hint = colorNeonMag + hint + colorReset
	}
	fmt.Fprintln(w, hint)
	fmt.Fprintln(w, strings.Repeat("─", 54))
}
