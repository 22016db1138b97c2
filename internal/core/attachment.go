package core

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
)

const (
	AttachmentImage       AttachmentKind = "image"
	AttachmentDocument    AttachmentKind = "document"
	AttachmentUnsupported AttachmentKind = "unsupported"
)

const (
	SlotBillTopSheet AttachmentSlot = "bill-top-sheet"
	SlotBudgetCopy   AttachmentSlot = "budget-copy"
)

// DefaultAttachmentMaxBytes bounds a single uploaded file.
const DefaultAttachmentMaxBytes = 5 << 20

type (
	AttachmentKind string

	// AttachmentSlot names one of the two files a project can carry.
	AttachmentSlot string

	// Attachment is a file tagged by kind. The payload lives inline in Data,
	// or in a blob store under Key once offloaded.
	Attachment struct {
		Kind AttachmentKind `json:"kind"`
		Type string         `json:"type"`
		Name string         `json:"name,omitempty"`
		Size int            `json:"size"`
		Data []byte         `json:"data,omitempty"`
		Key  string         `json:"key,omitempty"`
	}
)

var (
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrAttachmentEmpty    = errors.New("attachment is empty")
	ErrInvalidDataURL     = errors.New("invalid data URL")
	ErrUnknownSlot        = errors.New("unknown attachment slot")
)

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

var documentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
	"text/csv":   true,
}

// Slots lists attachment slots in display order.
func Slots() []AttachmentSlot {
	return []AttachmentSlot{SlotBillTopSheet, SlotBudgetCopy}
}

func ParseSlot(s string) (AttachmentSlot, error) {
	switch AttachmentSlot(s) {
	case SlotBillTopSheet, SlotBudgetCopy:
		return AttachmentSlot(s), nil
	}
	return "", ErrUnknownSlot
}

func (s AttachmentSlot) Label() string {
	switch s {
	case SlotBillTopSheet:
		return "Bill Top Sheet"
	case SlotBudgetCopy:
		return "Budget Copy"
	}
	return string(s)
}

// KindOf maps a MIME type onto an attachment kind. Parameters such as
// charset are ignored.
func KindOf(mimeType string) AttachmentKind {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return AttachmentUnsupported
	}
	switch {
	case imageTypes[mt]:
		return AttachmentImage
	case documentTypes[mt]:
		return AttachmentDocument
	}
	return AttachmentUnsupported
}

// NewAttachment validates and tags a payload. maxBytes <= 0 applies the default.
func NewAttachment(mimeType, name string, data []byte, maxBytes int) (Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentMaxBytes
	}
	if len(data) == 0 {
		return Attachment{}, ErrAttachmentEmpty
	}
	if len(data) > maxBytes {
		return Attachment{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrAttachmentTooLarge, len(data), maxBytes)
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		mimeType = mt
	}
	return Attachment{
		Kind: KindOf(mimeType),
		Type: mimeType,
		Name: name,
		Size: len(data),
		Data: data,
	}, nil
}

// ParseDataURL decodes the data:<mime>;base64,<payload> form.
func ParseDataURL(s string, maxBytes int) (Attachment, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(s), "data:")
	if !ok {
		return Attachment{}, ErrInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Attachment{}, ErrInvalidDataURL
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return Attachment{}, ErrInvalidDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Attachment{}, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return NewAttachment(mimeType, "", data, maxBytes)
}

// UnmarshalJSON reads both the native form and records written by the
// original app, whose data is a data URL string with no kind or size. A
// legacy payload that does not decode is kept as a bare type so one bad
// file never poisons the collection holding it.
func (a *Attachment) UnmarshalJSON(b []byte) error {
	type plain Attachment
	var raw struct {
		plain
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = Attachment(raw.plain)

	if len(raw.Data) > 0 && !bytes.Equal(raw.Data, []byte("null")) {
		var s string
		if err := json.Unmarshal(raw.Data, &s); err != nil {
			return fmt.Errorf("attachment data: %w", err)
		}
		if strings.HasPrefix(s, "data:") {
			if parsed, err := ParseDataURL(s, len(s)); err == nil {
				a.Data = parsed.Data
				if a.Type == "" {
					a.Type = parsed.Type
				}
			}
		} else if s != "" {
			data, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return fmt.Errorf("attachment data: %w", err)
			}
			a.Data = data
		}
	}

	if a.Kind == "" {
		a.Kind = KindOf(a.Type)
	}
	if a.Size == 0 {
		a.Size = len(a.Data)
	}
	return nil
}

// DataURL renders the inline payload as a data URL, or "" when offloaded.
func (a Attachment) DataURL() string {
	if len(a.Data) == 0 {
		return ""
	}
	return "data:" + a.Type + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// Offloaded reports whether the payload lives in a blob store.
func (a Attachment) Offloaded() bool {
	return a.Key != "" && len(a.Data) == 0
}

// Notice is the text shown in place of a payload that is not rendered inline.
func (a Attachment) Notice() string {
	switch a.Kind {
	case AttachmentImage:
		return ""
	case AttachmentDocument:
		return fmt.Sprintf("Document format (%s) available in digital archive.", a.Type)
	}
	t := a.Type
	if t == "" {
		t = "unknown"
	}
	return fmt.Sprintf("Unsupported format (%s). Download to inspect.", t)
}

// Attachment returns the file in slot, or nil.
func (p Project) Attachment(slot AttachmentSlot) *Attachment {
	switch slot {
	case SlotBillTopSheet:
		return p.BillTopSheetImage
	case SlotBudgetCopy:
		return p.BudgetCopyAttachment
	}
	return nil
}

// SetAttachment replaces the file in slot.
func (p *Project) SetAttachment(slot AttachmentSlot, a *Attachment) {
	switch slot {
	case SlotBillTopSheet:
		p.BillTopSheetImage = a
	case SlotBudgetCopy:
		p.BudgetCopyAttachment = a
	}
}
