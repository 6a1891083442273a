package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsInFlight reports whether the job still holds its subject's in-flight slot
func (s JobStatus) IsInFlight() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Stem types
type StemType string

const (
	StemVocals StemType = "VOCALS"
	StemDrums  StemType = "DRUMS"
	StemBass   StemType = "BASS"
	StemOther  StemType = "OTHER"
)

// StemTypes is the fixed stem vocabulary in materialization order.
var StemTypes = []StemType{StemVocals, StemDrums, StemBass, StemOther}

// Placeholder metadata for backends that report nothing about the stems
const (
	PlaceholderDuration   = 180.0
	PlaceholderSampleRate = 44100
)

// Defaults applied when a provider leaves a stem field empty
const (
	DefaultStemDuration   = 0.0
	DefaultStemSampleRate = 44100
	DefaultStemEnergy     = 0.5
)

var defaultEnergy = map[StemType]float64{
	StemVocals: 0.8,
	StemDrums:  0.9,
	StemBass:   0.7,
	StemOther:  0.6,
}

// DefaultEnergy returns the fixed per-type energy used when a backend does not supply one.
func DefaultEnergy(t StemType) float64 {
	if e, ok := defaultEnergy[t]; ok {
		return e
	}
	return DefaultStemEnergy
}

// Provider names recorded on a job
const (
	ProviderSpleeter  = "spleeter"
	ProviderLalal     = "lalal"
	ProviderReplicate = "replicate"
	ProviderDemo      = "demo"
)

// SeparationModel is the nominal model name reported for every job.
const SeparationModel = "htdemucs"
