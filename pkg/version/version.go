package version

import "runtime/debug"

var version = "dev"

// Version returns the build string embedded via -ldflags when available.
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Sum != "" {
		return info.Main.Version
	}
	return version
}

// Set assigns the exported version when ldflags are not provided (e.g. local dev).
func Set(v string) {
	if v != "" {
		version = v
	}
}

// Info is the build metadata printed by the version command and stamped into run manifests.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"go_version,omitempty" yaml:"go_version,omitempty"`
	Revision  string `json:"revision,omitempty" yaml:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Build collects Info from the embedded build settings.
func Build() Info {
	out := Info{Version: Version()}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}
	out.GoVersion = info.GoVersion
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Revision = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}
	return out
}
