// Package version reports the running binary's build identity: the short
// git commit it was built from, whether the tree was dirty at build time,
// and a combined string for logs, the health endpoint, and the MCP
// handshake's client Implementation.Version field.
package version

import (
	"runtime/debug"
	"sync"
)

// AppName identifies Cortex in version strings and protocol handshakes
// (the MCP client Implementation.Name, the health endpoint, startup logs).
const AppName = "cortex"

var (
	once       sync.Once
	commit     string
	dirty      bool
	commitRead bool
)

// Commit returns the short (8-char) git commit Cortex was built from, or
// "dev" when build info carries no VCS revision (go run, go test, a build
// outside a git checkout).
func Commit() string {
	readBuildInfo()
	if !commitRead {
		return "dev"
	}
	return commit
}

// Dirty reports whether the working tree had uncommitted changes at build
// time. Always false alongside a "dev" Commit, since there is no VCS
// revision to have been dirty relative to.
func Dirty() bool {
	readBuildInfo()
	return dirty
}

// Full returns "cortex/<commit>", with a "-dirty" suffix when Dirty
// reports true, for use in user-agent strings, handshake payloads, and
// logging.
func Full() string {
	c := Commit()
	if Dirty() {
		c += "-dirty"
	}
	return AppName + "/" + c
}

// readBuildInfo populates commit/dirty/commitRead from the process's
// embedded build info exactly once; debug.ReadBuildInfo is a linear scan
// over info.Settings and there is no reason to repeat it per call.
func readBuildInfo() {
	once.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if s.Value == "" {
					continue
				}
				commitRead = true
				if len(s.Value) > 8 {
					commit = s.Value[:8]
				} else {
					commit = s.Value
				}
			case "vcs.modified":
				dirty = s.Value == "true"
			}
		}
	})
}
