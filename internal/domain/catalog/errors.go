package catalog

import (
	"errors"

	"github.com/erp/catalogsync/internal/domain/shared"
)

var (
	ErrInvalidKind       = errors.New("catalog: invalid entity kind")
	ErrDetailKind        = errors.New("catalog: detail does not match entity kind")
	ErrEmptyNaturalKey   = shared.NewDomainError("INVALID_NATURAL_KEY", "Natural key cannot be empty")
	ErrNaturalKeyTooLong = shared.NewDomainError("INVALID_NATURAL_KEY", "Natural key cannot exceed 200 characters")
	ErrEmptyName         = shared.NewDomainError("INVALID_NAME", "Name cannot be empty")
	ErrNameTooLong       = shared.NewDomainError("INVALID_NAME", "Name cannot exceed 300 characters")
	ErrAlreadyPublished  = shared.NewDomainError("INVALID_STATE", "Entity is already published")
	ErrAlreadyDraft      = shared.NewDomainError("INVALID_STATE", "Entity is already a draft")
	ErrDuplicateEntity   = shared.NewDomainError("ALREADY_EXISTS", "An entity with this natural key already exists")
	ErrInvalidExternalID = errors.New("catalog: invalid external id")
	ErrTermKeyMismatch   = shared.NewDomainError("INVALID_NATURAL_KEY", "Term natural key does not match its taxonomy and slug")
)
