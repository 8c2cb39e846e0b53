package domain

import "time"

// EventType tags the outbound stream entries the facade emits to the GUI,
// per §6.
type EventType string

const (
	EventLog            EventType = "logEvent"
	EventDownloadSpeed  EventType = "downloadSpeedEvent"
	EventDownloadTask   EventType = "downloadTaskEvent"
	EventExportPDF      EventType = "exportPdfEvent"
	EventExportCBZ      EventType = "exportCbzEvent"
	EventConfigChanged  EventType = "configChangedEvent"
)

// Event is the tagged variant the facade serialises to the GUI bridge.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// LogEventPayload mirrors the log sink contract summarised in §6; the
// logging sink itself is out of scope, this is only the wire shape.
type LogEventPayload struct {
	Timestamp   time.Time         `json:"timestamp"`
	Level       string            `json:"level"`
	Target      string            `json:"target"`
	Filename    string            `json:"filename"`
	LineNumber  int               `json:"line_number"`
	Fields      map[string]string `json:"fields"`
}

// DownloadSpeedPayload is the body of EventDownloadSpeed.
type DownloadSpeedPayload struct {
	Speed string `json:"speed"`
}

// ExportEventKind distinguishes the phases of an export job (§4.7).
type ExportEventKind string

const (
	ExportStart ExportEventKind = "Start"
	ExportEnd   ExportEventKind = "End"
	ExportError ExportEventKind = "Error"
)

// ExportEventPayload is the body of both EventExportPDF and EventExportCBZ.
type ExportEventPayload struct {
	Kind  ExportEventKind `json:"kind"`
	UUID  string          `json:"uuid"`
	Title string          `json:"title,omitempty"`
	Error string          `json:"error,omitempty"`
}

// CommandStatus tags the outer shape every command returns, per §6.
type CommandStatus string

const (
	StatusOK    CommandStatus = "ok"
	StatusError CommandStatus = "error"
)

// CommandResult is the `{status, data}` or `{status, error}` envelope
// every command handler returns.
type CommandResult struct {
	Status CommandStatus `json:"status"`
	Data   any           `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// OK wraps a successful command result.
func OK(data any) CommandResult {
	return CommandResult{Status: StatusOK, Data: data}
}

// Fail wraps a failed command result, using the error's ErrTitle when
// available so the GUI gets the user-facing title rather than a raw error.
func Fail(err error) CommandResult {
	if typed, ok := err.(*Error); ok {
		return CommandResult{Status: StatusError, Error: typed.ErrTitle}
	}
	return CommandResult{Status: StatusError, Error: err.Error()}
}
