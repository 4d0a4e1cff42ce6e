package output

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

// PrintBanner displays the startup logo and version line.
func PrintBanner(w io.Writer, version string) {
	if w == nil {
		return
	}

	fig := figure.NewFigure("Exploit Prover", "standard", true)
	fmt.Fprintln(w, fig.String())
	fmt.Fprintf(w, "Exploit Prover v%s\n", version)
	fmt.Fprintln(w, "Static exploit prover for Python")
	fmt.Fprintln(w)
}

// CompactBanner returns a single-line banner for non-TTY output.
func CompactBanner(version string) string {
	return fmt.Sprintf("Exploit Prover v%s | static exploit prover for Python", version)
}

// ShouldShowBanner determines if the full banner should be displayed.
// Never shown when --no-banner is set; the full ASCII art is TTY-only.
func ShouldShowBanner(isTTY bool, noBannerFlag bool) bool {
	if noBannerFlag {
		return false
	}
	return isTTY
}
