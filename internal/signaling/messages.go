package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/counselmeet/room-relay/internal/rooms"
)

type messageType string

// Event names mirror the browser client's vocabulary.
const (
	// relay -> client
	messageTypeMe             messageType = "me"
	messageTypeAllUsers       messageType = "all users"
	messageTypeRoomFull       messageType = "room full"
	messageTypeUserJoined     messageType = "user joined"
	messageTypeReturnedSignal messageType = "receiving returned signal"
	messageTypeStatusUpdate   messageType = "status update"
	messageTypeUserLeft       messageType = "user left"
	messageTypeError          messageType = "error"

	// client -> relay
	messageTypeJoinRoom        messageType = "join room"
	messageTypeSendingSignal   messageType = "sending signal"
	messageTypeReturningSignal messageType = "returning signal"
	messageTypeUpdateStatus    messageType = "update status"
)

// Status kinds accepted by "update status".
const (
	statusKindMic     = "mic"
	statusKindCamera  = "camera"
	statusKindNetwork = "network"
)

// signalMessage is the JSON envelope for every message in both directions.
// The relay treats Signal, CallerStatus and Status as opaque blobs.
type signalMessage struct {
	Type messageType `json:"type"`

	// join room
	RoomID   string `json:"roomID,omitempty"`
	Name     string `json:"name,omitempty"`
	UserType string `json:"userType,omitempty"`

	// all users
	Users []rooms.Member `json:"users,omitempty"`

	// signal forwarding
	UserToSignal string          `json:"userToSignal,omitempty"`
	CallerID     string          `json:"callerID,omitempty"`
	CallerName   string          `json:"callerName,omitempty"`
	CallerType   string          `json:"callerType,omitempty"`
	Signal       json.RawMessage `json:"signal,omitempty"`
	CallerStatus json.RawMessage `json:"callerStatus,omitempty"`

	// status updates; Status doubles as the mic/cam piggyback blob on
	// "returning signal" and "receiving returned signal"
	Kind   string          `json:"kind,omitempty"`
	Status json.RawMessage `json:"status,omitempty"`

	// me / receiving returned signal / status update / user left
	ID string `json:"id,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// parseClientMessage decodes and validates one inbound message. Decoding is
// strict: unknown fields and trailing data are rejected so malformed clients
// fail loudly instead of being half-understood.
func parseClientMessage(data []byte) (signalMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var msg signalMessage
	if err := dec.Decode(&msg); err != nil {
		return signalMessage{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return signalMessage{}, fmt.Errorf("unexpected trailing data")
	}
	if err := msg.validateClient(); err != nil {
		return signalMessage{}, err
	}
	return msg, nil
}

func (m signalMessage) validateClient() error {
	switch m.Type {
	case messageTypeJoinRoom:
		if m.RoomID == "" {
			return fmt.Errorf("join room message missing roomID")
		}
		if m.UserToSignal != "" || m.CallerID != "" || m.Signal != nil || m.Kind != "" || m.Status != nil {
			return fmt.Errorf("join room message has unexpected fields")
		}
	case messageTypeSendingSignal:
		if m.UserToSignal == "" {
			return fmt.Errorf("sending signal message missing userToSignal")
		}
		if m.CallerID == "" {
			return fmt.Errorf("sending signal message missing callerID")
		}
		if len(m.Signal) == 0 {
			return fmt.Errorf("sending signal message missing signal")
		}
		if m.RoomID != "" || m.Name != "" || m.UserType != "" || m.Kind != "" || m.Status != nil {
			return fmt.Errorf("sending signal message has unexpected fields")
		}
	case messageTypeReturningSignal:
		if m.CallerID == "" {
			return fmt.Errorf("returning signal message missing callerID")
		}
		if len(m.Signal) == 0 {
			return fmt.Errorf("returning signal message missing signal")
		}
		if m.RoomID != "" || m.Name != "" || m.UserType != "" || m.UserToSignal != "" || m.Kind != "" {
			return fmt.Errorf("returning signal message has unexpected fields")
		}
	case messageTypeUpdateStatus:
		if err := validateStatus(m.Kind, m.Status); err != nil {
			return err
		}
		if m.RoomID != "" || m.Name != "" || m.UserType != "" || m.UserToSignal != "" || m.CallerID != "" || m.Signal != nil {
			return fmt.Errorf("update status message has unexpected fields")
		}
	default:
		return fmt.Errorf("unsupported message type %q", m.Type)
	}
	return nil
}

// validateStatus checks the kind/value pairing without retaining any parsed
// form; the raw blob is what gets broadcast.
func validateStatus(kind string, status json.RawMessage) error {
	value := string(bytes.TrimSpace(status))
	switch kind {
	case statusKindMic, statusKindCamera:
		if value != "true" && value != "false" {
			return fmt.Errorf("%s status must be a boolean", kind)
		}
	case statusKindNetwork:
		if value != `"good"` && value != `"low"` {
			return fmt.Errorf("network status must be \"good\" or \"low\"")
		}
	default:
		return fmt.Errorf("unsupported status kind %q", kind)
	}
	return nil
}
