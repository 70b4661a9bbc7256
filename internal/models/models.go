// Package models defines the core data structures for Insura.
//
// It includes inbound message events, delivery statuses and the JSON
// envelope used by the HTTP API, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// MessageKind identifies the shape of an inbound chat message.
type MessageKind string

const (
	// MessageKindText is a plain typed message.
	MessageKindText MessageKind = "text"
	// MessageKindButton is a reply button tap.
	MessageKindButton MessageKind = "interactive_button"
	// MessageKindList is a list row selection.
	MessageKindList MessageKind = "interactive_list"
	// MessageKindAudio is a voice note, transcribed before dispatch.
	MessageKindAudio MessageKind = "audio"
	// MessageKindDocument is an uploaded file (usually a PDF).
	MessageKindDocument MessageKind = "document"
	// MessageKindImage is an uploaded photo.
	MessageKindImage MessageKind = "image"
)

// IsUpload reports whether the kind carries a document or photo.
func (k MessageKind) IsUpload() bool {
	return k == MessageKindDocument || k == MessageKindImage
}

// IsInteractive reports whether the kind carries a structured selection.
func (k MessageKind) IsInteractive() bool {
	return k == MessageKindButton || k == MessageKindList
}

// Validation limits imposed by the WhatsApp interactive message formats.
const (
	// MaxButtonOptions is the maximum number of reply buttons in one message.
	MaxButtonOptions = 3
	// MaxListOptions is the maximum number of rows in one list message.
	MaxListOptions = 10
	// MaxButtonTitleLength is the maximum reply button title length.
	MaxButtonTitleLength = 20
	// MaxListTitleLength is the maximum list row title length.
	MaxListTitleLength = 24
	// MaxInteractiveBodyLength is the maximum interactive body length.
	MaxInteractiveBodyLength = 1024
)

// Validation errors returned by InboundEvent.Validate.
var (
	ErrEmptyUserID       = errors.New("user id cannot be empty")
	ErrEmptyEvent        = errors.New("event carries no text, selection or media")
	ErrMissingMediaBytes = errors.New("upload event has no media bytes")
)

// InteractiveSelection is the payload of a button or list tap.
type InteractiveSelection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Media describes an uploaded file. Data is filled in after download.
type Media struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"-"`
}

// InboundEvent is one message received from a user on any transport.
type InboundEvent struct {
	UserID      string                `json:"user_id"`
	MessageID   string                `json:"message_id,omitempty"`
	Kind        MessageKind           `json:"kind"`
	Text        string                `json:"text,omitempty"`
	Selection   *InteractiveSelection `json:"selection,omitempty"`
	Media       *Media                `json:"media,omitempty"`
	ProfileName string                `json:"profile_name,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
}

// Validate checks that the event can be dispatched.
func (e *InboundEvent) Validate() error {
	if e.UserID == "" {
		return ErrEmptyUserID
	}
	if e.Kind.IsUpload() {
		if e.Media == nil || len(e.Media.Data) == 0 {
			return ErrMissingMediaBytes
		}
		return nil
	}
	if e.Text == "" && e.Selection == nil {
		return ErrEmptyEvent
	}
	return nil
}

// SelectionTitle returns the selected option title, or "" for free text.
func (e *InboundEvent) SelectionTitle() string {
	if e.Selection == nil {
		return ""
	}
	return e.Selection.Title
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt is a delivery status reported by the chat platform.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
	// APIStatusWarning indicates the request was valid but had nothing to act on.
	APIStatusWarning APIStatus = "warning"
)

// APIResponse is the JSON envelope of every admin endpoint.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// Success wraps result in an ok envelope.
func Success(result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage is Success with a human-readable message.
func SuccessWithMessage(message string, result any) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Warning reports a valid request that had nothing to act on, such as
// resetting a conversation that does not exist.
func Warning(message string) APIResponse {
	return APIResponse{Status: string(APIStatusWarning), Message: message}
}

// Error reports a failed request.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
