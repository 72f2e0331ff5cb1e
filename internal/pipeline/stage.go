package pipeline

import "time"

// Stage is one step of a merge run.
type Stage string

const (
	StageSelectBase       Stage = "/select_base"        // Discover archives, pick the base
	StageDecompileAll     Stage = "/decompile_all"      // Decode every archive
	StageReconcileAndCopy Stage = "/reconcile_and_copy" // Reconcile tables, rewrite, merge files
	StageStyleDedup       Stage = "/style_dedup"        // Optional duplicate style item removal
	StageManifestFix      Stage = "/manifest_fix"       // Split suppression in the manifest
	StageRebuild          Stage = "/rebuild"            // Build the merged archive
	StageDone             Stage = "/done"
)

// Stages lists the stages in execution order.
var Stages = []Stage{
	StageSelectBase,
	StageDecompileAll,
	StageReconcileAndCopy,
	StageStyleDedup,
	StageManifestFix,
	StageRebuild,
	StageDone,
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StatusCompleted StageStatus = "/completed"
	StatusSkipped   StageStatus = "/skipped"
	StatusFailed    StageStatus = "/failed"
)

// StageRecord is one entry of a run's stage history.
type StageRecord struct {
	Stage    Stage
	Status   StageStatus
	Duration time.Duration
	Err      error
}
