package detection

import (
	"gocv.io/x/gocv"
)

// CPUProvider implements YOLO inference using OpenCV CPU backend
type CPUProvider struct {
	darknetNet
}

// Initialize loads the network on the default OpenCV backend
func (cp *CPUProvider) Initialize(files ModelFiles, th Thresholds) error {
	return cp.load(files, th, gocv.NetBackendDefault, gocv.NetTargetCPU)
}

// Detect performs person detection on a frame using CPU
func (cp *CPUProvider) Detect(frame gocv.Mat) ([]Detection, error) {
	return cp.detect(frame)
}

// Close releases resources used by the CPU provider
func (cp *CPUProvider) Close() error {
	return cp.close()
}

// GetProviderInfo returns information about the CPU provider
func (cp *CPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:         "CPU",
		Backend:      "OpenCV CPU",
		Device:       "CPU",
		EstimatedFPS: 15, // yolov3-tiny at 416 on a laptop core
	}
}
