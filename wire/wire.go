// Package wire implements the text frame protocol spoken with the sync
// server: a JSON envelope with a mandatory "type" discriminator and a
// "data" payload whose shape depends on the type.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	kiterr "github.com/knovault/go-live-sync/errors"
)

// Inbound event discriminators. The set is closed on the client side;
// frames with any other well-formed type are ignored for forward
// compatibility with newer servers.
const (
	TypeFileClassified    = "file_classified"
	TypeSyncStatusChanged = "sync_status_changed"
	TypeConflictDetected  = "conflict_detected"
	TypeGraphUpdated      = "graph_updated"
)

// Outbound command discriminators.
const (
	TypeResolveConflict = "resolve_conflict"
)

// ErrUnknownType marks a well-formed envelope whose type the client does not
// recognize. Callers drop these silently; they are not malformed frames.
var ErrUnknownType = errors.New("unknown event type")

// Maximum number of raw frame bytes included in a malformed-frame log entry.
const MaxLoggedFrameBytes = 256

// Envelope is the outer wire shape shared by events and commands.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Event is the decoded form of an inbound frame.
type Event interface {
	// EventType returns the wire discriminator for this event
	EventType() string
}

// FileClassified reports that the server finished classifying a file.
type FileClassified struct {
	Path       string  `json:"path"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

func (FileClassified) EventType() string { return TypeFileClassified }

// SyncStatusChanged reports a change in the server-side sync pipeline.
type SyncStatusChanged struct {
	State          string `json:"state"`
	PendingUploads int    `json:"pending_uploads"`
	Message        string `json:"message,omitempty"`
}

func (SyncStatusChanged) EventType() string { return TypeSyncStatusChanged }

// ConflictDetected reports a divergence between a local and a remote
// version of an artifact that needs a user decision.
type ConflictDetected struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	LocalHash  string    `json:"local_hash"`
	RemoteHash string    `json:"remote_hash"`
	Kind       string    `json:"kind"`
	DetectedAt time.Time `json:"detected_at"`
}

func (ConflictDetected) EventType() string { return TypeConflictDetected }

// GraphUpdated reports that the server-side knowledge graph changed shape.
type GraphUpdated struct {
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (GraphUpdated) EventType() string { return TypeGraphUpdated }

// Decode parses a raw text frame into a typed Event.
//
// A frame that is not valid JSON, lacks a type, or carries a payload that
// does not decode for its known type fails with a MALFORMED_MESSAGE error.
// A well-formed envelope with an unrecognized type fails with a wrapped
// ErrUnknownType so the caller can tell the two apart.
func Decode(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, kiterr.NewMalformedMessage(kiterr.OpDecode, fmt.Errorf("invalid envelope: %w", err))
	}
	if env.Type == "" {
		return nil, kiterr.NewMalformedMessage(kiterr.OpDecode, errors.New("missing type discriminator"))
	}

	switch env.Type {
	case TypeFileClassified:
		var ev FileClassified
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeSyncStatusChanged:
		var ev SyncStatusChanged
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case TypeConflictDetected:
		var ev ConflictDetected
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		if ev.ID == "" {
			return nil, kiterr.NewMalformedMessage(kiterr.OpDecode, errors.New("conflict_detected payload has no id"))
		}
		return ev, nil
	case TypeGraphUpdated:
		var ev GraphUpdated
		if err := unmarshalData(env.Data, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func unmarshalData(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return kiterr.NewMalformedMessage(kiterr.OpDecode, errors.New("missing data payload"))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return kiterr.NewMalformedMessage(kiterr.OpDecode, fmt.Errorf("invalid data payload: %w", err))
	}
	return nil
}

// Command is the encoded form of an outbound frame.
type Command interface {
	// CommandType returns the wire discriminator for this command
	CommandType() string
}

// ResolveConflict tells the server which side of a conflict the user kept.
// CommandID is stamped by the sender so the server can de-duplicate retries.
type ResolveConflict struct {
	CommandID  string `json:"command_id"`
	ConflictID string `json:"conflict_id"`
	Strategy   string `json:"strategy"`
	Note       string `json:"note,omitempty"`
}

func (ResolveConflict) CommandType() string { return TypeResolveConflict }

// Encode serializes an outbound command into the envelope wire shape.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, kiterr.NewWithComponent(kiterr.OpEncode, "wire", err)
	}
	raw, err := json.Marshal(Envelope{Type: cmd.CommandType(), Data: data})
	if err != nil {
		return nil, kiterr.NewWithComponent(kiterr.OpEncode, "wire", err)
	}
	return raw, nil
}

// TruncateForLog bounds a raw frame for inclusion in a log entry so one bad
// frame cannot blow up log volume.
func TruncateForLog(raw []byte) string {
	if len(raw) <= MaxLoggedFrameBytes {
		return string(raw)
	}
	return string(raw[:MaxLoggedFrameBytes]) + "...(truncated)"
}
