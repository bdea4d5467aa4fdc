package phasejs

import (
	"github.com/cryguy/phasejs/internal/core"
	"github.com/cryguy/phasejs/internal/script"
)

// Type aliases re-exporting internal types so hosts can configure and drive
// the engine without importing internal packages.

type Phase = core.Phase
type Origin = core.Origin
type Outcome = core.Outcome
type Request = core.Request
type SourceLoader = core.SourceLoader
type EngineConfig = core.EngineConfig
type ScriptConfig = core.ScriptConfig
type LocationConfig = core.LocationConfig
type ScriptError = core.ScriptError
type CompileError = script.CompileError
type FileLoader = script.FileLoader
type VMStats = script.Stats

// Constants re-exported from core.
const (
	PhasePostRead      = core.PhasePostRead
	PhaseServerRewrite = core.PhaseServerRewrite
	PhaseRewrite       = core.PhaseRewrite
	PhaseAccess        = core.PhaseAccess
	PhaseContent       = core.PhaseContent
	PhaseLog           = core.PhaseLog

	OriginFile   = core.OriginFile
	OriginInline = core.OriginInline

	OutcomeNotConfigured = core.OutcomeNotConfigured
	OutcomeOK            = core.OutcomeOK
	OutcomeDeclined      = core.OutcomeDeclined
	OutcomeError         = core.OutcomeError
)

// Errors re-exported from core.
var (
	ErrNotBound      = core.ErrNotBound
	ErrHeaderSent    = core.ErrHeaderSent
	ErrInvalidStatus = core.ErrInvalidStatus
	ErrPoolClosed    = core.ErrPoolClosed
)

// Phases lists every phase in the order the host runs them.
var Phases = core.Phases

// ParsePhase is re-exported from core.
var ParsePhase = core.ParsePhase
