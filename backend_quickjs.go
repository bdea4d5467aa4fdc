//go:build !v8

package phasejs

import (
	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/quickjs"
)

func newFactory() core.VMFactory {
	return quickjs.NewFactory()
}
