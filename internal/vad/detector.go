package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// thresholds maps an aggressiveness level (0-3) to the smoothed speech
// probability required to classify a frame as speech. Higher levels
// demand stronger evidence, trading missed speech for fewer false
// positives, mirroring the webrtcvad modes.
var thresholds = [4]float64{0.30, 0.40, 0.50, 0.65}

// defaultEnergyFloor is the RMS level below which a frame is treated
// as certain silence regardless of smoothing state.
const defaultEnergyFloor = 120.0

// referenceEnergy is the RMS level mapped to probability 1.0.
const referenceEnergy = 6000.0

// Detector classifies fixed-duration PCM frames as speech or silence.
// Classification is energy-based with light exponential smoothing so a
// single noisy frame does not flip the decision.
type Detector struct {
	aggressiveness int
	threshold      float64
	energyFloor    float64
	smoothing      float64

	// Smoothing state
	lastProbability float64
	framesSeen      uint64

	// Statistics
	speechFrames  uint64
	lastProcessed time.Time

	mu sync.Mutex
}

// Result is the classification outcome for one frame
type Result struct {
	Probability float64 `json:"probability"` // smoothed speech probability (0.0 - 1.0)
	IsSpeech    bool    `json:"is_speech"`
	Energy      float64 `json:"energy"` // raw frame RMS
}

// Stats reports detector counters for monitoring
type Stats struct {
	Aggressiveness   int       `json:"aggressiveness"`
	TotalFrames      uint64    `json:"total_frames"`
	SpeechFrames     uint64    `json:"speech_frames"`
	SpeechPercentage float64   `json:"speech_percentage"`
	LastProcessed    time.Time `json:"last_processed"`
}

// NewDetector creates a detector with the given aggressiveness level
// (0 = most permissive, 3 = most aggressive). energyFloor below or
// equal to zero selects the default.
func NewDetector(aggressiveness int, energyFloor float64) (*Detector, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("aggressiveness must be between 0 and 3, got %d", aggressiveness)
	}

	if energyFloor <= 0 {
		energyFloor = defaultEnergyFloor
	}

	return &Detector{
		aggressiveness: aggressiveness,
		threshold:      thresholds[aggressiveness],
		energyFloor:    energyFloor,
		smoothing:      0.35,
	}, nil
}

// Classify processes one frame of PCM samples
func (d *Detector) Classify(samples []int16) (Result, error) {
	if len(samples) == 0 {
		return Result{}, fmt.Errorf("cannot classify empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	energy := rms(samples)

	probability := energy / referenceEnergy
	if probability > 1 {
		probability = 1
	}
	if energy < d.energyFloor {
		probability = 0
	}

	if d.framesSeen > 0 {
		probability = d.smoothing*probability + (1-d.smoothing)*d.lastProbability
	}
	d.lastProbability = probability

	isSpeech := probability >= d.threshold

	d.framesSeen++
	if isSpeech {
		d.speechFrames++
	}
	d.lastProcessed = time.Now()

	return Result{
		Probability: probability,
		IsSpeech:    isSpeech,
		Energy:      energy,
	}, nil
}

// Reset clears smoothing state and statistics
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastProbability = 0
	d.framesSeen = 0
	d.speechFrames = 0
	d.lastProcessed = time.Time{}
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	speechPercentage := float64(0)
	if d.framesSeen > 0 {
		speechPercentage = float64(d.speechFrames) / float64(d.framesSeen) * 100
	}

	return Stats{
		Aggressiveness:   d.aggressiveness,
		TotalFrames:      d.framesSeen,
		SpeechFrames:     d.speechFrames,
		SpeechPercentage: speechPercentage,
		LastProcessed:    d.lastProcessed,
	}
}

// Aggressiveness returns the configured aggressiveness level
func (d *Detector) Aggressiveness() int {
	return d.aggressiveness
}

func rms(samples []int16) float64 {
	var sum float64
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
