// Package argonfile decodes, validates and encodes portable argon transfer
// files. A file is either a send file (funds moved to recipients) or a
// request file (an unfunded request for an amount), never both.
package argonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/argon-desk/argon_desk/internal/argons"
)

var (
	// ErrInvalidFile is returned when a payload does not match the argon file schema.
	ErrInvalidFile = errors.New("invalid argon file")

	// ErrInvalidFileType is returned when an operation receives the wrong file variant.
	ErrInvalidFileType = errors.New("wrong argon file type")
)

// Account types and note actions referenced by routing.
const (
	AccountTypeDeposit = "deposit"
	AccountTypeTax     = "tax"

	ActionSend  = "send"
	ActionClaim = "claim"
)

// File is a decoded argon file.
type File struct {
	Send    []BalanceChange `json:"send,omitempty"`
	Request []BalanceChange `json:"request,omitempty"`
}

// BalanceChange is one account's contribution to a file.
type BalanceChange struct {
	AccountID   string `json:"accountId,omitempty"`
	AccountType string `json:"accountType"`
	Notes       []Note `json:"notes"`
}

// Note moves or claims an amount of milligons.
type Note struct {
	NoteType  NoteType `json:"noteType"`
	Milligons int64    `json:"milligons"`
}

// NoteType carries the note action and optional recipient restriction.
type NoteType struct {
	Action string     `json:"action"`
	To     Recipients `json:"to,omitempty"`
}

// Recipients lists addresses allowed to claim a send note. It decodes from a
// single address or an array, and encodes a single address as a plain string.
type Recipients []string

// UnmarshalJSON accepts "addr", ["addr", ...] or null.
func (r *Recipients) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single == "" {
			*r = nil
			return nil
		}
		*r = Recipients{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

// MarshalJSON writes one address as a string and several as an array.
func (r Recipients) MarshalJSON() ([]byte, error) {
	if len(r) == 1 {
		return json.Marshal(r[0])
	}
	return json.Marshal([]string(r))
}

// IsSend reports whether the file carries sent argons.
func (f File) IsSend() bool { return f.Send != nil }

// IsRequest reports whether the file is a request for argons.
func (f File) IsRequest() bool { return f.Request != nil }

// Parse decodes and validates raw argon file JSON.
func Parse(raw []byte) (File, error) {
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate enforces the schema rules on an already decoded file.
func (f File) Validate() error {
	switch {
	case f.IsSend() && f.IsRequest():
		return fmt.Errorf("%w: both send and request present", ErrInvalidFile)
	case !f.IsSend() && !f.IsRequest():
		return fmt.Errorf("%w: neither send nor request present", ErrInvalidFile)
	}
	changes := f.Send
	if f.IsRequest() {
		changes = f.Request
	}
	if len(changes) == 0 {
		return fmt.Errorf("%w: no balance changes", ErrInvalidFile)
	}
	var total int64
	for i, change := range changes {
		if change.AccountType == "" {
			return fmt.Errorf("%w: entry %d missing accountType", ErrInvalidFile, i)
		}
		for j, note := range change.Notes {
			if note.NoteType.Action == "" {
				return fmt.Errorf("%w: entry %d note %d missing action", ErrInvalidFile, i, j)
			}
			if note.Milligons < 0 {
				return fmt.Errorf("%w: entry %d note %d has negative milligons", ErrInvalidFile, i, j)
			}
			if note.Milligons > math.MaxInt64-total {
				return fmt.Errorf("%w: note amounts exceed the milligon range", ErrInvalidFile)
			}
			total += note.Milligons
		}
	}
	return nil
}

// Marshal encodes a file after validating it.
func Marshal(f File) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(f)
}

// RequiredFunding sums the claim notes of deposit entries in a request file.
func RequiredFunding(f File) int64 {
	var sum int64
	for _, change := range f.Request {
		if change.AccountType != AccountTypeDeposit {
			continue
		}
		for _, note := range change.Notes {
			if note.NoteType.Action == ActionClaim {
				sum += note.Milligons
			}
		}
	}
	return sum
}

// SendTargets lists, in file order, the recipients of send notes on deposit
// entries of a send file.
func SendTargets(f File) []string {
	var targets []string
	for _, change := range f.Send {
		if change.AccountType != AccountTypeDeposit {
			continue
		}
		for _, note := range change.Notes {
			if note.NoteType.Action != ActionSend {
				continue
			}
			for _, to := range note.NoteType.To {
				if to != "" {
					targets = append(targets, to)
				}
			}
		}
	}
	return targets
}

// SendFileName is the display name of a send file.
func SendFileName(milligons int64, toAddress string) string {
	recipient := "cash"
	if toAddress != "" {
		recipient = "for " + toAddress
	}
	return fmt.Sprintf("%s %s.arg", argons.Format(milligons), recipient)
}

// RequestFileName is the display name of a request file created at t.
func RequestFileName(t time.Time) string {
	return "Argon Request " + t.Local().Format("1/2/2006, 3:04:05 PM")
}

// Meta bundles a created file with its raw encoding and display name.
type Meta struct {
	RawJSON string `json:"rawJson"`
	File    File   `json:"file"`
	Name    string `json:"name"`
}
