package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// keyedRecord is implemented by every record persisted through a generic
// repository. Implementations must tolerate nil receivers.
type keyedRecord interface {
	recordID() string
	setRecordID(id string)
}

func recordHandlers[T keyedRecord](newRecord func() T) repository.ModelHandlers[T] {
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			return strings.TrimSpace(record.recordID())
		},
	}
}

func orderHandlers() repository.ModelHandlers[*orderRecord] {
	return recordHandlers(func() *orderRecord { return &orderRecord{} })
}

func proposalHandlers() repository.ModelHandlers[*proposalRecord] {
	return recordHandlers(func() *proposalRecord { return &proposalRecord{} })
}

func notificationHandlers() repository.ModelHandlers[*notificationRecord] {
	return recordHandlers(func() *notificationRecord { return &notificationRecord{} })
}

func preferenceHandlers() repository.ModelHandlers[*preferenceRecord] {
	return recordHandlers(func() *preferenceRecord { return &preferenceRecord{} })
}

func dispatchHandlers() repository.ModelHandlers[*dispatchRecord] {
	return recordHandlers(func() *dispatchRecord { return &dispatchRecord{} })
}

func auditHandlers() repository.ModelHandlers[*auditRecord] {
	return recordHandlers(func() *auditRecord { return &auditRecord{} })
}

func (r *orderRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *orderRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *proposalRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *proposalRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *notificationRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *notificationRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *preferenceRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *preferenceRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *dispatchRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *dispatchRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func (r *auditRecord) recordID() string {
	if r == nil {
		return ""
	}
	return r.ID
}

func (r *auditRecord) setRecordID(id string) {
	if r != nil {
		r.ID = id
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
