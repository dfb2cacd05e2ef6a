package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"gocv.io/x/gocv"

	"safetycam/internal/calibration"
	"safetycam/internal/camera"
	"safetycam/internal/config"
	"safetycam/internal/detection"
	"safetycam/internal/geometry"
	"safetycam/internal/locator"
	"safetycam/internal/logging"
	"safetycam/internal/overlay"
	"safetycam/internal/safety"
	"safetycam/internal/store"
)

const windowName = "safetycam"

// Key codes returned by WaitKey
const (
	keyEsc   = 27
	keySpace = 32
)

// monitor owns every stage of the loop. All locator mutations happen on the
// goroutine running run(); stdin only produces commands.
type monitor struct {
	cfg      *config.Config
	log      *logging.Logger
	model    *camera.Model
	loc      *locator.Locator
	detector detection.PersonDetector
	renderer *overlay.Renderer
	limits   safety.Limits

	db      *store.Store
	session *store.Session

	persons []detection.Detection
}

func main() {
	cfg, err := config.Parse(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		fmt.Println(commandHelp)
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration Error: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewLogger(os.Stdout, cfg.Verbose)
	defer logger.Close()
	if cfg.LogFile != "" {
		if err := logger.EnableFile(cfg.LogFile); err != nil {
			logger.Msg("ERROR", fmt.Sprintf("log file disabled: %v", err))
		}
	}

	logger.Msg("MAIN", "🔗 Connecting debug functions to all packages...")
	camera.SetDebugFunction(logger.Msg)
	calibration.SetDebugFunction(logger.Msg)
	locator.SetDebugFunction(logger.Msg)
	detection.SetDebugFunction(logger.Msg)
	store.SetDebugFunction(logger.Msg)

	if err := run(cfg, logger); err != nil {
		logger.Msg("ERROR", err.Error())
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	if err := cfg.CheckSettings(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	// Distance limits only affect the zone readout, keep running
	if err := cfg.CheckDistances(); err != nil {
		logger.Msg("CONFIG", fmt.Sprintf("⚠️ %v", err))
	}

	m := &monitor{
		cfg:    cfg,
		log:    logger,
		limits: cfg.Limits(),
	}
	m.renderer = overlay.NewRenderer(m.limits)
	defer m.close()

	orch, err := calibration.NewOrchestrator(cfg.Calibration())
	if err != nil {
		return err
	}
	var calibrationRun *store.CalibrationRun
	if cfg.DatabasePath != "" {
		if m.db, err = store.Open(cfg.DatabasePath); err != nil {
			return err
		}
		orch.OnResult = func(path string, res *calibration.Result) {
			run := store.NewCalibrationRun(path, orch.Config(), res)
			if err := m.db.RecordCalibration(run); err != nil {
				logger.Msg("STORE", fmt.Sprintf("calibration not recorded: %v", err))
				return
			}
			calibrationRun = run
		}
	}

	if m.model, err = camera.NewModel(cfg.IntrinsicsPath, cfg.ExtrinsicsPath, orch); err != nil {
		return fmt.Errorf("camera model: %w", err)
	}
	logger.Msg("CAMERA", fmt.Sprintf("intrinsics from %s: %s", m.model.Source(), m.model.K()))

	providers := detection.NewProviderManager()
	if err := providers.Initialize(cfg.ModelFiles(), cfg.Thresholds()); err != nil {
		return fmt.Errorf("person detector: %w", err)
	}
	defer providers.Close()
	m.detector = providers
	info := providers.GetProviderInfo()
	logger.Msg("DETECT", fmt.Sprintf("using %s provider (%s)", info.Type, info.Backend))

	if m.loc, err = locator.New(m.model.K(), cfg.Locator(), nil); err != nil {
		return err
	}

	capture, err := openCapture(cfg.VideoSource)
	if err != nil {
		return err
	}
	defer capture.Close()

	if m.db != nil {
		m.session = &store.Session{
			VideoSource:      cfg.VideoSource,
			IntrinsicsPath:   cfg.IntrinsicsPath,
			IntrinsicsSource: m.model.Source().String(),
			CameraHeightM:    cfg.CameraHeightM,
			DCloseM:          cfg.DCloseM,
			DMaxM:            cfg.DMaxM,
		}
		if calibrationRun != nil {
			m.session.CalibrationRun = calibrationRun.ID
		}
		if err := m.db.StartSession(m.session); err != nil {
			logger.Msg("STORE", fmt.Sprintf("session not recorded: %v", err))
			m.session = nil
		}
	}

	return m.loop(capture)
}

// openCapture treats a numeric source as a camera index
func openCapture(source string) (*gocv.VideoCapture, error) {
	if index, err := strconv.Atoi(source); err == nil {
		capture, err := gocv.OpenVideoCapture(index)
		if err != nil {
			return nil, fmt.Errorf("%w: camera %d: %v", camera.ErrIO, index, err)
		}
		return capture, nil
	}
	capture, err := gocv.VideoCaptureFile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: video %s: %v", camera.ErrIO, source, err)
	}
	return capture, nil
}

func (m *monitor) loop(capture *gocv.VideoCapture) error {
	window := gocv.NewWindow(windowName)
	defer window.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	commands := make(chan command, 8)
	go readCommands(os.Stdin, commands, func(msg string) { fmt.Println(msg) })

	frame := gocv.NewMat()
	defer frame.Close()
	display := gocv.NewMat()
	defer display.Close()

	m.log.Msg("MAIN", "press SPACE to select a region, type '?' for stdin commands")
	for {
		select {
		case sig := <-sigChan:
			m.log.Msg("MAIN", fmt.Sprintf("Received signal %v. Cleaning up...", sig))
			return nil
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				break
			}
			if cmd.quit {
				return nil
			}
			m.apply(cmd)
		default:
		}

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			m.log.Msg("MAIN", "end of video stream")
			return nil
		}
		if err := m.processFrame(frame); err != nil {
			return err
		}

		m.render(&display)
		window.IMShow(display)

		switch key := window.WaitKey(1); key {
		case keyEsc:
			return nil
		case 'r', 'R':
			m.handle([]locator.Event{locator.Reset()})
		case keySpace:
			m.selectRegion(window)
		}
	}
}

// processFrame undistorts the frame, finds people and hands it to the locator
func (m *monitor) processFrame(frame gocv.Mat) error {
	undistorted, err := m.model.Undistort(frame)
	if err != nil {
		return err
	}
	defer undistorted.Close()

	persons, err := m.detector.Detect(undistorted)
	if err != nil {
		m.log.Verbose("DETECT", fmt.Sprintf("detection failed: %v", err))
		persons = nil
	}
	m.persons = persons

	if err := m.loc.SetFrame(undistorted); err != nil {
		return err
	}

	if m.session != nil {
		m.session.Frames++
		m.session.PersonDetections += int64(len(persons))
	}
	return nil
}

// render copies the locator's frame into dst and draws the overlay on it
func (m *monitor) render(dst *gocv.Mat) {
	m.loc.CopyFrame(dst)
	m.draw(dst)
}

func (m *monitor) draw(img *gocv.Mat) {
	f := overlay.Frame{
		Selection:    m.loc,
		Persons:      m.persons,
		CameraHeight: m.loc.CameraHeight(),
	}
	f.Ground, f.HasGround = m.loc.LastGround()
	if m.cfg.Verbose {
		f.History = m.log.History()
	}
	m.renderer.Draw(img, f)
}

// selectRegion lets the user drag a rectangle on a still of the current
// frame and feeds it to the locator as press, drag and release
func (m *monitor) selectRegion(window *gocv.Window) {
	m.handle([]locator.Event{locator.Reset()})

	still := gocv.NewMat()
	defer still.Close()
	m.render(&still)
	rect := gocv.SelectROI(windowName, still)
	if rect.Empty() {
		m.log.Msg("LOCATOR", "region selection cancelled")
		return
	}
	m.handle(regionEvents(rect.Min.X, rect.Min.Y, rect.Max.X, rect.Max.Y))
	if m.loc.Mode() == locator.RegionFinalized {
		m.log.Msg("LOCATOR", fmt.Sprintf("%d features in %v, type 'X Y' to pick one", len(m.loc.Features()), m.loc.Region()))
	}
}

func (m *monitor) apply(cmd command) {
	if cmd.setHeight {
		if err := m.loc.SetCameraHeight(cmd.height); err != nil {
			m.log.Msg("LOCATOR", fmt.Sprintf("⚠️ %v", err))
			return
		}
		if m.session != nil {
			m.session.CameraHeightM = cmd.height
		}
		m.log.Msg("LOCATOR", fmt.Sprintf("camera height set to %.2fm", cmd.height))
		if g, ok := m.loc.LastGround(); ok {
			m.report(g)
		}
		return
	}
	m.handle(cmd.events)
}

// handle delivers events in order. Selection problems are warnings; the
// locator stays in its previous mode.
func (m *monitor) handle(events []locator.Event) {
	for _, ev := range events {
		out, err := m.loc.Handle(ev)
		switch {
		case err == nil:
		case locator.IsSelection(err):
			m.log.Msg("LOCATOR", fmt.Sprintf("⚠️ %v", err))
			continue
		case errors.Is(err, locator.ErrSingularProjection):
			m.log.Msg("LOCATOR", fmt.Sprintf("⚠️ cannot project: %v", err))
			continue
		default:
			m.log.Msg("ERROR", fmt.Sprintf("%s failed: %v", ev.Kind, err))
			return
		}
		if out.Projected {
			m.report(out.Ground)
		}
	}
}

func (m *monitor) report(g geometry.GroundPoint) {
	if m.session != nil {
		m.session.Projections++
	}
	m.log.Msg("SAFETY", m.renderer.GroundReadout(g))
	if m.limits.Classify(g) == safety.ZoneClose {
		m.log.Msg("SAFETY", fmt.Sprintf("🚨 inside the %.2fm close zone", m.limits.Close))
	}
}

func (m *monitor) close() {
	if m.loc != nil {
		m.loc.Close()
	}
	if m.db == nil {
		return
	}
	if m.session != nil {
		if err := m.db.EndSession(m.session); err != nil {
			m.log.Msg("STORE", fmt.Sprintf("session not closed: %v", err))
		} else {
			m.log.Msg("STORE", fmt.Sprintf("session %s: %d frames, %d detections, %d projections",
				m.session.ID, m.session.Frames, m.session.PersonDetections, m.session.Projections))
		}
	}
	m.db.Close()
}
