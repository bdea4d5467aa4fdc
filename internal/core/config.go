package core

// EngineConfig holds runtime configuration for the script engine.
type EngineConfig struct {
	Workers         int  // number of independent VM sets; one request per worker at a time
	FailOnException bool // report OutcomeError instead of OutcomeOK after an uncaught exception
}

// ScriptConfig names one script slot of a location.
type ScriptConfig struct {
	Phase  Phase
	Origin Origin
	// Source is a file path for OriginFile and script text for OriginInline.
	Source string
}

// LocationConfig is the script configuration of one location prefix.
type LocationConfig struct {
	Path    string
	Scripts []ScriptConfig
}
