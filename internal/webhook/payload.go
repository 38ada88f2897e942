package webhook

// GitHub webhook payload shapes, trimmed to the fields the router reads.

// PayloadRepository is a repository reference inside a webhook payload.
type PayloadRepository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// PayloadInstallation carries the GitHub App installation id.
type PayloadInstallation struct {
	ID int64 `json:"id"`
}

// InstallationPayload is the body of an "installation" event.
type InstallationPayload struct {
	Action       string              `json:"action"`
	Installation PayloadInstallation `json:"installation"`
	Repositories []PayloadRepository `json:"repositories"`
}

// InstallationRepositoriesPayload is the body of an
// "installation_repositories" event.
type InstallationRepositoriesPayload struct {
	Action              string              `json:"action"`
	Installation        PayloadInstallation `json:"installation"`
	RepositoriesAdded   []PayloadRepository `json:"repositories_added"`
	RepositoriesRemoved []PayloadRepository `json:"repositories_removed"`
}

// PushCommit is a single commit entry in a push payload.
type PushCommit struct {
	ID       string   `json:"id"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

// PushPayload is the body of a "push" event.
type PushPayload struct {
	Ref          string              `json:"ref"`
	Before       string              `json:"before"`
	After        string              `json:"after"`
	Repository   PayloadRepository   `json:"repository"`
	Installation PayloadInstallation `json:"installation"`
	Pusher       struct {
		Name string `json:"name"`
	} `json:"pusher"`
	Commits []PushCommit `json:"commits"`
}
