package detection

import (
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"
)

// darknetNet is the YOLO network shared by the CPU and GPU providers; only
// the backend and target differ.
type darknetNet struct {
	net        gocv.Net
	outNames   []string
	classNames []string
	personID   int
	th         Thresholds
	mu         sync.Mutex
}

func (d *darknetNet) load(files ModelFiles, th Thresholds, backend gocv.NetBackendType, target gocv.NetTargetType) error {
	names, err := loadClassNames(files.Names)
	if err != nil {
		return err
	}
	personID := indexOf(names, "person")
	if personID < 0 {
		return fmt.Errorf("class names %s have no \"person\" entry", files.Names)
	}

	net := gocv.ReadNet(files.Weights, files.Config)
	if net.Empty() {
		return fmt.Errorf("failed to load YOLO network from %s and %s", files.Weights, files.Config)
	}
	net.SetPreferableBackend(backend)
	net.SetPreferableTarget(target)

	var outNames []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		outNames = append(outNames, layer.GetName())
		layer.Close()
	}

	if th.InputSize <= 0 {
		th.InputSize = DefaultThresholds().InputSize
	}
	d.net = net
	d.outNames = outNames
	d.classNames = names
	d.personID = personID
	d.th = th
	debugMsg("DETECT", fmt.Sprintf("loaded %d classes, person=%d, outputs=%v", len(names), personID, outNames))
	return nil
}

func (d *darknetNet) detect(frame gocv.Mat) ([]Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(d.th.InputSize, d.th.InputSize)
	blob := gocv.BlobFromImage(frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	d.net.SetInput(blob, "")

	outputs := d.net.ForwardLayers(d.outNames)
	defer func() {
		for i := range outputs {
			outputs[i].Close()
		}
	}()

	frameSize := image.Pt(frame.Cols(), frame.Rows())
	var candidates []Detection
	for _, out := range outputs {
		if out.Cols() < 5 {
			continue
		}
		row := make([]float32, out.Cols())
		for i := 0; i < out.Rows(); i++ {
			for j := range row {
				row[j] = out.GetFloatAt(i, j)
			}
			if det, ok := decodeRow(row, frameSize, d.personID, d.th); ok {
				candidates = append(candidates, det)
			}
		}
	}
	return Suppress(candidates, d.th), nil
}

func (d *darknetNet) close() error {
	return d.net.Close()
}

func loadClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read class names: %w", err)
	}
	lines := strings.Split(string(data), "\n")
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		names = append(names, strings.TrimSpace(l))
	}
	for len(names) > 0 && names[len(names)-1] == "" {
		names = names[:len(names)-1]
	}
	return names, nil
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
