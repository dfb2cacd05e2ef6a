package detection

import (
	"errors"
	"fmt"
	"image"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gocv.io/x/gocv"
)

// Detection is one person found in a frame
type Detection struct {
	Box        image.Rectangle
	Confidence float64
	ClassID    int
}

// ModelFiles locates a Darknet YOLO model on disk
type ModelFiles struct {
	Weights string
	Config  string
	Names   string
}

// Thresholds control candidate filtering and non-max suppression
type Thresholds struct {
	InputSize  int     // square network input, pixels
	Objectness float64 // minimum box objectness
	ClassScore float64 // minimum person class score
	NMSScore   float64 // score threshold passed to NMS
	NMSIoU     float64 // overlap above which the weaker box is dropped
}

// DefaultThresholds returns the 416px / 0.5 / 0.4 / NMS(0.4, 0.3) setup
func DefaultThresholds() Thresholds {
	return Thresholds{
		InputSize:  416,
		Objectness: 0.5,
		ClassScore: 0.4,
		NMSScore:   0.4,
		NMSIoU:     0.3,
	}
}

// ErrNoProvider is returned when Detect is called before Initialize succeeded
var ErrNoProvider = errors.New("detection: no inference provider initialized")

// Global debug function for detection package
var debugMsgFunc func(string, string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(component, message string)) {
	debugMsgFunc = fn
}

// debugMsg is a wrapper that handles nil checks
func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// PersonDetector is the frame to person-boxes contract used by the monitor
type PersonDetector interface {
	Detect(frame gocv.Mat) ([]Detection, error)
}

// InferenceProvider defines the interface for YOLO inference
type InferenceProvider interface {
	PersonDetector
	Initialize(files ModelFiles, th Thresholds) error
	Close() error
	GetProviderInfo() ProviderInfo
}

// ProviderInfo contains information about the inference provider
type ProviderInfo struct {
	Type         string        // "GPU" or "CPU"
	Backend      string        // "CUDA", "CPU"
	Device       string        // Device identifier
	EstimatedFPS int           // Estimated inference FPS
	InitTime     time.Duration // Time taken to initialize
}

// ProviderManager handles automatic provider selection and fallback
type ProviderManager struct {
	currentProvider InferenceProvider
	providerInfo    ProviderInfo

	// overridable for tests
	gpuAvailable func() bool
	newGPU       func() InferenceProvider
	newCPU       func() InferenceProvider
}

// NewProviderManager creates a new provider manager with auto-detection
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		gpuAvailable: hasGPUCapability,
		newGPU:       func() InferenceProvider { return &GPUProvider{} },
		newCPU:       func() InferenceProvider { return &CPUProvider{} },
	}
}

// Initialize performs auto-detection and initializes the best available provider
func (pm *ProviderManager) Initialize(files ModelFiles, th Thresholds) error {
	debugMsg("PROVIDER", "auto-detecting best inference provider...")

	// Try GPU first
	if pm.gpuAvailable() {
		debugMsg("PROVIDER", "GPU capability detected, attempting GPU initialization...")
		gpuProvider := pm.newGPU()

		startTime := time.Now()
		err := gpuProvider.Initialize(files, th)
		if err == nil {
			// Test GPU inference to make sure it really works
			if testProvider(gpuProvider, th.InputSize) {
				pm.use(gpuProvider, time.Since(startTime))
				return nil
			}
			debugMsg("PROVIDER", "GPU test inference failed, falling back to CPU")
			gpuProvider.Close()
		} else {
			debugMsg("PROVIDER", fmt.Sprintf("GPU initialization failed: %v, falling back to CPU", err))
		}
	} else {
		debugMsg("PROVIDER", "no GPU capability detected")
	}

	// Fall back to CPU
	cpuProvider := pm.newCPU()
	startTime := time.Now()
	if err := cpuProvider.Initialize(files, th); err != nil {
		return fmt.Errorf("both GPU and CPU providers failed: %w", err)
	}
	pm.use(cpuProvider, time.Since(startTime))
	return nil
}

func (pm *ProviderManager) use(p InferenceProvider, initTime time.Duration) {
	pm.currentProvider = p
	pm.providerInfo = p.GetProviderInfo()
	pm.providerInfo.InitTime = initTime
	debugMsg("PROVIDER", fmt.Sprintf("%s provider initialized (%v)", pm.providerInfo.Type, initTime))
}

// Detect runs the active provider
func (pm *ProviderManager) Detect(frame gocv.Mat) ([]Detection, error) {
	if pm.currentProvider == nil {
		return nil, ErrNoProvider
	}
	return pm.currentProvider.Detect(frame)
}

// GetProvider returns the current active provider
func (pm *ProviderManager) GetProvider() InferenceProvider {
	return pm.currentProvider
}

// GetProviderInfo returns information about the current provider
func (pm *ProviderManager) GetProviderInfo() ProviderInfo {
	return pm.providerInfo
}

// Close closes the current provider
func (pm *ProviderManager) Close() error {
	if pm.currentProvider != nil {
		return pm.currentProvider.Close()
	}
	return nil
}

// hasGPUCapability checks if GPU inference is possible
func hasGPUCapability() bool {
	if !hasNVIDIAGPU() {
		debugMsg("GPU_DETECT", "no NVIDIA GPU detected")
		return false
	}
	if !hasNVIDIADriver() {
		debugMsg("GPU_DETECT", "NVIDIA drivers not loaded")
		return false
	}
	// CUDA itself is only proven by the test inference
	debugMsg("GPU_DETECT", "hardware checks passed, will test CUDA during initialization")
	return true
}

// hasNVIDIAGPU checks if NVIDIA GPU is present
func hasNVIDIAGPU() bool {
	output, err := exec.Command("lspci").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(output)), "nvidia")
}

// hasNVIDIADriver checks if NVIDIA drivers are loaded
func hasNVIDIADriver() bool {
	if err := exec.Command("nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Run(); err != nil {
		return false
	}
	matches, _ := filepath.Glob("/dev/nvidia*")
	return len(matches) > 0
}

// testProvider performs a quick test inference to verify the provider works
func testProvider(provider InferenceProvider, size int) bool {
	if size <= 0 {
		size = DefaultThresholds().InputSize
	}
	testFrame := gocv.NewMatWithSize(size, size, gocv.MatTypeCV8UC3)
	defer testFrame.Close()

	_, err := provider.Detect(testFrame)
	return err == nil
}
