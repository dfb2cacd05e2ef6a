package camera

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const flatIntrinsics = `# intrinsics for bench camera
812.5,0,640.25
0,809.75,359.5

0,0,1
# distortion
-0.21,0.034,0.0012,-0.0007,0.0015
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

type fakeCalibrator struct {
	k     Intrinsics
	d     Distortion
	err   error
	paths []string
}

func (f *fakeCalibrator) CalibrateVideo(path string) (Intrinsics, Distortion, error) {
	f.paths = append(f.paths, path)
	return f.k, f.d, f.err
}

func TestParseIntrinsicsRoundTrip(t *testing.T) {
	k, d, err := ParseIntrinsics(strings.NewReader(flatIntrinsics))
	require.NoError(t, err)

	wantK := []float64{812.5, 0, 640.25, 0, 809.75, 359.5, 0, 0, 1}
	if diff := cmp.Diff(wantK, k.Values()); diff != "" {
		t.Errorf("K mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Distortion{-0.21, 0.034, 0.0012, -0.0007, 0.0015}, d)
	assert.Equal(t, 812.5, k.Fx())
	assert.Equal(t, 809.75, k.Fy())
	assert.Equal(t, 640.25, k.Cx())
	assert.Equal(t, 359.5, k.Cy())
}

func TestHeaderedWriterIsReadable(t *testing.T) {
	k := IntrinsicsFromParams(1021.123456789, 1019.5, 959.75, 539.25)
	d := Distortion{0.1, -0.25, 1e-4, -2e-5, 0.03125}

	var buf bytes.Buffer
	require.NoError(t, WriteIntrinsicsCSV(&buf, k, d))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "# Camera Matrix", lines[0])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "# Distortion Coefficients", lines[5])

	gotK, gotD, err := ParseIntrinsics(&buf)
	require.NoError(t, err)
	assert.Equal(t, k.Values(), gotK.Values())
	assert.Equal(t, d, gotD)
}

func TestParseIntrinsicsRejectsShortFile(t *testing.T) {
	_, _, err := ParseIntrinsics(strings.NewReader("1,2,3\n4,5,6\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestParseIntrinsicsRejectsGarbage(t *testing.T) {
	_, _, err := ParseIntrinsics(strings.NewReader("1,2,x\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
	assert.Contains(t, err.Error(), `"x"`)
}

func TestParseExtrinsics(t *testing.T) {
	in := "# R|t\n1,0,0,0.5\n0,1,0,-1.2\n0,0,1,3\n"
	e, err := ParseExtrinsics(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 0.5, e.At(0, 3))
	assert.Equal(t, -1.2, e.At(1, 3))
	assert.Equal(t, 1.0, e.At(2, 2))
	r, c := e.Matrix().Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 4, c)

	_, err = ParseExtrinsics(strings.NewReader("1,0,0\n"))
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestLoadIntrinsicsDispatch(t *testing.T) {
	csvPath := writeFile(t, "cam.csv", flatIntrinsics)
	cal := &fakeCalibrator{k: IntrinsicsFromParams(900, 900, 320, 240), d: Distortion{0.1}}

	k, _, source, err := LoadIntrinsics(csvPath, cal)
	require.NoError(t, err)
	assert.Equal(t, SourceFile, source)
	assert.Equal(t, 812.5, k.Fx())
	assert.Empty(t, cal.paths)

	for _, name := range []string{"board.mp4", "board.MOV"} {
		k, d, source, err := LoadIntrinsics(filepath.Join(t.TempDir(), name), cal)
		require.NoError(t, err, name)
		assert.Equal(t, SourceCalibration, source)
		assert.Equal(t, 900.0, k.Fx())
		assert.Equal(t, 0.1, d[0])
	}
	assert.Len(t, cal.paths, 2)

	_, _, source, err = LoadIntrinsics("camera.yaml", cal)
	assert.True(t, errors.Is(err, ErrFormat))
	assert.Equal(t, SourceNone, source)
}

func TestLoadIntrinsicsMissingFile(t *testing.T) {
	_, _, _, err := LoadIntrinsics(filepath.Join(t.TempDir(), "missing.csv"), nil)
	assert.True(t, errors.Is(err, ErrIO))
}

func TestLoadIntrinsicsPropagatesCalibrationFailure(t *testing.T) {
	boom := errors.New("no corners")
	_, _, _, err := LoadIntrinsics("board.mp4", &fakeCalibrator{err: boom})
	assert.ErrorIs(t, err, boom)
}

func TestNewModelRequiresCalibratedK(t *testing.T) {
	zeroPath := writeFile(t, "zero.csv", strings.Repeat("0,", 13)+"0\n")
	_, err := NewModel(zeroPath, "", nil)
	assert.True(t, errors.Is(err, ErrUncalibrated))

	_, err = NewModelFromParams(IntrinsicsFromParams(-5, 800, 320, 240), Distortion{}, Extrinsics{}, SourceFile)
	assert.True(t, errors.Is(err, ErrUncalibrated))
}

func TestNewModelLoadsExtrinsics(t *testing.T) {
	in := writeFile(t, "in.csv", flatIntrinsics)
	ex := writeFile(t, "ex.csv", "1,0,0,0\n0,1,0,0\n0,0,1,2.5\n")

	m, err := NewModel(in, ex, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceFile, m.Source())
	assert.Equal(t, 2.5, m.E().At(2, 3))
	assert.False(t, m.E().IsZero())

	_, err = NewModel(in, writeFile(t, "ex.txt", "1"), nil)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestUndistortIdentityWithZeroDistortion(t *testing.T) {
	m, err := NewModelFromParams(IntrinsicsFromParams(800, 800, 320, 240), Distortion{}, Extrinsics{}, SourceFile)
	require.NoError(t, err)

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()
	gocv.Circle(&img, image.Pt(320, 240), 60, color.RGBA{255, 255, 255, 0}, -1)

	out, err := m.Undistort(img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, img.Rows(), out.Rows())
	assert.Equal(t, img.Cols(), out.Cols())
	assert.Equal(t, img.Type(), out.Type())
	assert.Equal(t, img.ToBytes(), out.ToBytes())
}

func TestRemapIsNearIdentityWithZeroDistortion(t *testing.T) {
	m, err := NewModelFromParams(IntrinsicsFromParams(800, 800, 320, 240), Distortion{}, Extrinsics{}, SourceFile)
	require.NoError(t, err)

	const rows, cols = 480, 640
	data := make([]byte, 0, rows*cols*3)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			data = append(data, byte(x*255/(cols-1)), byte(y*255/(rows-1)), 128)
		}
	}
	img, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, data)
	require.NoError(t, err)
	defer img.Close()

	out := m.remap(img)
	defer out.Close()
	require.Equal(t, rows, out.Rows())
	require.Equal(t, cols, out.Cols())
	require.Equal(t, img.Type(), out.Type())

	// the optimal new K may rescale by a pixel at the border, compare the interior
	interior := image.Rect(20, 20, cols-20, rows-20)
	want := img.Region(interior)
	defer want.Close()
	got := out.Region(interior)
	defer got.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(want, got, &diff)
	mean := diff.Mean()
	assert.Less(t, mean.Val1, 2.0, "blue channel")
	assert.Less(t, mean.Val2, 2.0, "green channel")
	assert.Less(t, mean.Val3, 2.0, "constant channel")
}

func TestUndistortPreservesShape(t *testing.T) {
	m, err := NewModelFromParams(IntrinsicsFromParams(800, 800, 320, 240), Distortion{-0.2, 0.05, 0, 0, 0}, Extrinsics{}, SourceFile)
	require.NoError(t, err)

	img := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer img.Close()

	out, err := m.Undistort(img)
	require.NoError(t, err)
	defer out.Close()

	assert.Equal(t, 480, out.Rows())
	assert.Equal(t, 640, out.Cols())
	assert.Equal(t, gocv.MatTypeCV8UC3, out.Type())
}

func TestUndistortUncalibrated(t *testing.T) {
	m := &Model{}
	img := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer img.Close()

	out, err := m.Undistort(img)
	defer out.Close()
	assert.True(t, errors.Is(err, ErrUncalibrated))
}

func TestMatConversions(t *testing.T) {
	k := IntrinsicsFromParams(800, 790, 320, 240)
	km := k.ToMat()
	defer km.Close()

	back, err := IntrinsicsFromMat(km)
	require.NoError(t, err)
	assert.Equal(t, k.Values(), back.Values())

	d := Distortion{0.1, 0.2, 0.3, 0.4, 0.5}
	dm := d.ToMat()
	defer dm.Close()
	dBack, err := DistortionFromMat(dm)
	require.NoError(t, err)
	assert.Equal(t, d, dBack)
}
