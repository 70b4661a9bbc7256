package models

import (
	"maps"
	"time"
)

// DocumentKind selects the field schema used for extraction and verification.
type DocumentKind string

const (
	DocumentIDCard              DocumentKind = "id_card"
	DocumentDrivingLicense      DocumentKind = "driving_license"
	DocumentVehicleRegistration DocumentKind = "vehicle_registration"
)

// DocumentKinds lists the supported kinds.
var DocumentKinds = []DocumentKind{DocumentIDCard, DocumentDrivingLicense, DocumentVehicleRegistration}

// Valid reports whether k is a supported document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentIDCard, DocumentDrivingLicense, DocumentVehicleRegistration:
		return true
	}
	return false
}

// DocumentRecord holds one document's immutable extraction result and the
// user-editable verified copy.
type DocumentRecord struct {
	Filename  string            `json:"filename,omitempty"`
	Extracted map[string]string `json:"extracted_info"`
	Verified  map[string]string `json:"verified_info"`
}

// NewDocumentRecord stores extracted and seeds Verified with a copy of it.
func NewDocumentRecord(filename string, extracted map[string]string) *DocumentRecord {
	return &DocumentRecord{
		Filename:  filename,
		Extracted: maps.Clone(extracted),
		Verified:  maps.Clone(extracted),
	}
}

// BotSpeaker is the Question of history entries holding bot messages.
const BotSpeaker = "Bot"

// HistoryEntry is one line of the audit trail.
type HistoryEntry struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the per-user conversation record.
type ConversationState struct {
	UserID          string                           `json:"user_id"`
	Stage           Stage                            `json:"stage"`
	Name            string                           `json:"name,omitempty"`
	ProfileName     string                           `json:"profile_name,omitempty"`
	SelectedService string                           `json:"selected_service,omitempty"`
	Responses       map[string]string                `json:"responses"`
	QuestionIndex   int                              `json:"question_index"`
	Documents       map[DocumentKind]*DocumentRecord `json:"documents,omitempty"`
	EditingField    string                           `json:"editing_field,omitempty"`
	History         []HistoryEntry                   `json:"conversation_history"`
	LLMResponses    []string                         `json:"llm_responses,omitempty"`
	LLMCount        int                              `json:"llm_conversation_count"`
	Language        string                           `json:"language,omitempty"`
	LastOptions     []string                         `json:"last_options,omitempty"`
	TakafulAsked    bool                             `json:"takaful_emarat_asked,omitempty"`
	CreatedAt       time.Time                        `json:"created_at"`
	UpdatedAt       time.Time                        `json:"updated_at"`
}

// NewConversationState returns a fresh record at the greeting stage. A
// non-empty profile name is taken as the user's name.
func NewConversationState(userID, profileName string, now time.Time) *ConversationState {
	return &ConversationState{
		UserID:      userID,
		Stage:       StageGreeting,
		Name:        profileName,
		ProfileName: profileName,
		Responses:   map[string]string{},
		Documents:   map[DocumentKind]*DocumentRecord{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SetResponse records an answer. Keys are never removed, only overwritten.
func (s *ConversationState) SetResponse(key, value string) {
	if s.Responses == nil {
		s.Responses = map[string]string{}
	}
	s.Responses[key] = value
}

// Response returns a recorded answer or "".
func (s *ConversationState) Response(key string) string {
	return s.Responses[key]
}

// Record appends an audit entry.
func (s *ConversationState) Record(question, answer string, now time.Time) {
	s.History = append(s.History, HistoryEntry{Question: question, Answer: answer, Timestamp: now})
}

// Document returns the record for kind, or nil.
func (s *ConversationState) Document(kind DocumentKind) *DocumentRecord {
	if s.Documents == nil {
		return nil
	}
	return s.Documents[kind]
}

// SetDocument replaces the record for kind.
func (s *ConversationState) SetDocument(kind DocumentKind, rec *DocumentRecord) {
	if s.Documents == nil {
		s.Documents = map[DocumentKind]*DocumentRecord{}
	}
	s.Documents[kind] = rec
}

// Clone returns a deep copy so callers never alias a stored record.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Responses = maps.Clone(s.Responses)
	if c.Responses == nil {
		c.Responses = map[string]string{}
	}
	c.Documents = make(map[DocumentKind]*DocumentRecord, len(s.Documents))
	for k, d := range s.Documents {
		if d == nil {
			continue
		}
		c.Documents[k] = &DocumentRecord{
			Filename:  d.Filename,
			Extracted: maps.Clone(d.Extracted),
			Verified:  maps.Clone(d.Verified),
		}
	}
	c.History = append([]HistoryEntry(nil), s.History...)
	c.LLMResponses = append([]string(nil), s.LLMResponses...)
	c.LastOptions = append([]string(nil), s.LastOptions...)
	return &c
}
