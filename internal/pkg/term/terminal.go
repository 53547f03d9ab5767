package term

import (
	"os"

	"golang.org/x/term"
)

// DefaultWidth используется, когда вывод идет не в терминал.
const DefaultWidth = 80

// Width возвращает ширину терминала, подключенного к stdout.
func Width() int {
	return WidthOf(os.Stdout, DefaultWidth)
}

// WidthOf возвращает ширину терминала f или fallback, если f не терминал.
func WidthOf(f *os.File, fallback int) int {
	if f == nil {
		return fallback
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return fallback
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}
