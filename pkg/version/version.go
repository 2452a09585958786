package version

// Set with -ldflags "-X github.com/compozy/workflowkit/pkg/version.Version=v1.0.0".
var (
	Version    = "dev"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// Info is the build metadata reported by the version command.
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildDate  string `json:"build_date"`
}

func Get() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildDate:  BuildDate,
	}
}

// UserAgent identifies this build in outgoing requests.
func UserAgent() string {
	return "workflowkit/" + Version
}
