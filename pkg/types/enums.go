package types

// RunStatus represents the lifecycle state of an analyzer run.
type RunStatus string

// RunStatus values represent the lifecycle states of an analyzer run.
const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// TriggerKind classifies what caused an analyzer run to be enqueued.
type TriggerKind string

// TriggerKind values enumerate the webhook events that enqueue runs.
const (
	TriggerPush        TriggerKind = "push"
	TriggerInstall     TriggerKind = "installation"
	TriggerRepoAdded   TriggerKind = "repository_added"
	TriggerRepoRemoved TriggerKind = "repository_removed"
)

// Verb distinguishes the kind of an event log entry. Governance verbs are
// fixed constants; runtime analytics verbs (page_view, button_click, ...)
// are free-form strings defined by the repository's schema.
type Verb = string

// Governance verbs recorded by the analyzer and by operators.
const (
	VerbSchema             Verb = "schema"
	VerbSchemaOverride     Verb = "schema_override"
	VerbRouteGraph         Verb = "route_graph"
	VerbRouteGraphOverride Verb = "route_graph_override"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
)

// AlertLevel is the severity of a dispatched alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)
