package models

import (
	"time"

	"github.com/google/uuid"
)

// Bank is a canonical institution used for participant resolution and fee
// attribution. IsBulgeBracket is classification metadata only.
type Bank struct {
	ID uuid.UUID

	Name           string
	NameNormalized string
	DisplayName    string
	ShortName      string

	IsBulgeBracket bool
	IsRegional     bool
	PrimaryMarket  string // US, EU, APAC

	Aliases []*BankAlias

	CreatedAt time.Time
}

// BankAlias maps an alternate name to a canonical bank.
type BankAlias struct {
	ID     uuid.UUID
	BankID uuid.UUID

	Alias           string
	AliasNormalized string
}
