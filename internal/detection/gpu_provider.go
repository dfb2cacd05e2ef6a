package detection

import (
	"gocv.io/x/gocv"
)

// GPUProvider implements YOLO inference using OpenCV CUDA backend
type GPUProvider struct {
	darknetNet
}

// Initialize loads the network on the CUDA backend. A missing CUDA build
// only shows up at the first forward pass, which the manager tests for.
func (gp *GPUProvider) Initialize(files ModelFiles, th Thresholds) error {
	return gp.load(files, th, gocv.NetBackendCUDA, gocv.NetTargetCUDA)
}

// Detect performs person detection on a frame using GPU
func (gp *GPUProvider) Detect(frame gocv.Mat) ([]Detection, error) {
	return gp.detect(frame)
}

// Close releases resources used by the GPU provider
func (gp *GPUProvider) Close() error {
	return gp.close()
}

// GetProviderInfo returns information about the GPU provider
func (gp *GPUProvider) GetProviderInfo() ProviderInfo {
	return ProviderInfo{
		Type:         "GPU",
		Backend:      "OpenCV CUDA",
		Device:       "NVIDIA GPU",
		EstimatedFPS: 200,
	}
}
