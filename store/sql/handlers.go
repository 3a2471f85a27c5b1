package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func itemHandlers() repository.ModelHandlers[*itemRecord] {
	return repository.ModelHandlers[*itemRecord]{
		NewRecord: func() *itemRecord {
			return &itemRecord{}
		},
		GetID: func(record *itemRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *itemRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "item_key"
		},
		GetIdentifierValue: func(record *itemRecord) string {
			if record == nil {
				return ""
			}
			return record.ItemKey
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
