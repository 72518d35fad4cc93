// Package version carries the build identity stamped in with -ldflags.
package version

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

var (
	Version   string = "1.0"
	Revision  string = ""
	BuildId   string = ""
	BuildTime string = ""
	// set to "debug" with -ldflags for debug builds
	BuildType string = "release"
)

const product = "cfbridge"

// OnelineVersionString joins the non-empty parts of the build identity with dots.
func OnelineVersionString() string {
	parts := []string{Version}
	for _, p := range []string{Revision, BuildId} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ".")
}

func WriteVersionInfo(w io.Writer) {
	writeInfo(w, filepath.Base(os.Args[0]))
}

func writeInfo(w io.Writer, binName string) {
	fmt.Fprintf(w, "\n%s %s %s (%s build)\n\n", product, binName, Version, BuildType)

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(w, "  %-10s: %s\n", name, value)
		}
	}
	field("Build No.", BuildId)
	field("Git Commit", Revision)
	field("Go Version", runtime.Version())
	field("OS/Arch", runtime.GOOS+"/"+runtime.GOARCH)
	field("Built", BuildTime)
	fmt.Fprintln(w)
}

func PrintVersionInfo() {
	WriteVersionInfo(os.Stdout)
}

func HttpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	WriteVersionInfo(w)
}
