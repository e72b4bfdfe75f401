//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/resumekit/resumekit/internal/app"
)

// InitializeApp assembles the whole service from AppProviders. The real body
// is generated by wire into wire_gen.go.
func InitializeApp() (*app.App, error) {
	panic(wire.Build(AppProviders))
}
