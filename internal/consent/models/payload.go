package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Storage entry names. They match what earlier releases of the site wrote so
// existing visitors keep their decision.
const (
	KeyConsentFlag = "cookie_consent"
	KeyPreferences = "cookie_preferences"

	// FlagDecided is the value of KeyConsentFlag once a decision exists.
	FlagDecided = "true"
)

// PayloadVersion is the schema version written by EncodePayload. Payloads
// without a version field are version 1 and decode the same way.
const PayloadVersion = 2

var errPayloadNotObject = errors.New("preferences payload is not a JSON object")

type payload struct {
	Version   int    `json:"v,omitempty"`
	Necessary bool   `json:"necessary"`
	Analytics *bool  `json:"analytics,omitempty"`
	Date      string `json:"date,omitempty"`
}

// EncodePayload serializes a record for the KeyPreferences entry.
func EncodePayload(record ConsentRecord) (string, error) {
	analytics := record.Categories.Analytics
	p := payload{
		Version:   PayloadVersion,
		Necessary: true,
		Analytics: &analytics,
	}
	if !record.DecidedAt.IsZero() {
		p.Date = record.DecidedAt.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodePayload parses a KeyPreferences entry. A missing analytics field
// reads as denied; an unparseable date leaves DecidedAt zero. Unknown fields
// and newer versions are tolerated.
func DecodePayload(raw string) (ConsentRecord, error) {
	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return DefaultRecord(), err
	}
	if _, ok := generic.(map[string]any); !ok {
		return DefaultRecord(), errPayloadNotObject
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return DefaultRecord(), err
	}

	analytics := p.Analytics != nil && *p.Analytics
	record := ConsentRecord{
		HasDecided: true,
		Categories: NewPreferences(analytics),
	}
	if p.Date != "" {
		if t, err := time.Parse(time.RFC3339Nano, p.Date); err == nil {
			record.DecidedAt = t
		}
	}
	return record, nil
}
