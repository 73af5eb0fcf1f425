package version

import (
	"fmt"
	"log"
	"strings"

	"github.com/bdurand/async-http-pool/theme"
)

var (
	Name        = "async-http-pool"
	Authors     = "bdurand"
	Description = "In-process asynchronous HTTP offload engine"
	Version     = "v0.0.1"
	Commit      = "none"
	Date        = "nowish"
	User        = "local"
)

const (
	GithubHomeText  = "github.com/bdurand/async-http-pool"
	GithubHomeUri   = "https://github.com/bdurand/async-http-pool"
	GithubLatestUri = "https://github.com/bdurand/async-http-pool/releases/latest"
)

func PrintVersionInfo(extendedInfo bool, vlog *log.Logger) {
	githubUri := theme.Hyperlink(GithubHomeUri, GithubHomeText)
	latestUri := theme.Hyperlink(GithubLatestUri, Version)
	padLatest := fmt.Sprintf("%*s", 1-len(Version), "")
	padBuffer := fmt.Sprintf("%*s", 2, "")

	var b strings.Builder

	b.WriteString(theme.ColourSplash(`
╔────────────────────────────────────────────────────────╗
│   ___                        _   _ _____ _____ ____     │
│  / _ \                      | | | |_   _|_   _|  _ \    │
│ / /_\ \ ___ _   _ _ __   ___| |_| | | |   | | | |_) |   │
│ |  _  |/ __| | | | '_ \ / __| __| | | |   | | |  __/    │
│ | | | |\__ \ |_| | | | | (__| |_| | | |   | | | |       │
│ \_| |_/___/\__, |_| |_|\___|\__|_| \_/   \_/ |_|        │
│             __/ |   pool                                │
│            |___/                                         │` + "\n"))

	b.WriteString(theme.ColourSplash("│ "))
	b.WriteString(theme.StyleUrl(githubUri))
	b.WriteString(padLatest)
	b.WriteString(theme.ColourVersion(latestUri))
	b.WriteString(padBuffer)
	b.WriteString(theme.ColourSplash(" │\n"))
	b.WriteString(theme.ColourSplash("╚────────────────────────────────────────────────────────╝"))

	if extendedInfo {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf(" Commit: %s\n", Commit))
		b.WriteString(fmt.Sprintf("  Built: %s\n", Date))
		b.WriteString(fmt.Sprintf("  Using: %s\n", User))
	}

	vlog.Println(b.String())
}
