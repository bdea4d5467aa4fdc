//go:build v8

package phasejs

import (
	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/v8engine"
)

func newFactory() core.VMFactory {
	return v8engine.NewFactory()
}
