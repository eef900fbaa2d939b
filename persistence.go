package auth

import (
	"github.com/goliatone/go-persistence-bun"
)

// RegisterModels registers the package models with the persistence layer.
// Call it before persistence.New so bun knows about the relations.
func RegisterModels() {
	persistence.RegisterModel((*Account)(nil))
	persistence.RegisterModel((*RefreshToken)(nil))
}
