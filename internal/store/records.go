package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safetycam/internal/calibration"
	"safetycam/internal/camera"
)

// CalibrationRun is one completed intrinsics calibration
type CalibrationRun struct {
	ID            uuid.UUID
	SourcePath    string
	CreatedAt     time.Time
	ImageWidth    int
	ImageHeight   int
	PatternRows   int
	PatternCols   int
	FramesRead    int
	RawSamples    int
	SolverSamples int
	RMS           float64
	K             camera.Intrinsics
	D             camera.Distortion
	Duration      time.Duration
}

// NewCalibrationRun summarises an orchestrator result
func NewCalibrationRun(source string, cfg calibration.Config, res *calibration.Result) *CalibrationRun {
	return &CalibrationRun{
		ID:            uuid.New(),
		SourcePath:    source,
		CreatedAt:     time.Now(),
		ImageWidth:    res.ImageSize.X,
		ImageHeight:   res.ImageSize.Y,
		PatternRows:   cfg.PatternRows,
		PatternCols:   cfg.PatternCols,
		FramesRead:    res.FramesRead,
		RawSamples:    res.Raw.Len(),
		SolverSamples: res.Sampled.Len(),
		RMS:           res.RMS,
		K:             res.K,
		D:             res.D,
		Duration:      res.Duration,
	}
}

const calibrationColumns = `run_id, source_path, created_at_ns, image_width, image_height,
	pattern_rows, pattern_cols, frames_read, raw_samples, solver_samples, rms,
	fx, fy, cx, cy, skew, k1, k2, p1, p2, k3, duration_ms`

// RecordCalibration inserts run, assigning an ID and timestamp when unset
func (s *Store) RecordCalibration(run *CalibrationRun) error {
	if err := run.K.Validate(); err != nil {
		return fmt.Errorf("refusing to record calibration: %w", err)
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := s.Exec(`INSERT INTO calibration_runs (`+calibrationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.SourcePath, run.CreatedAt.UnixNano(), run.ImageWidth, run.ImageHeight,
		run.PatternRows, run.PatternCols, run.FramesRead, run.RawSamples, run.SolverSamples, run.RMS,
		run.K.Fx(), run.K.Fy(), run.K.Cx(), run.K.Cy(), run.K.Skew(),
		run.D[0], run.D[1], run.D[2], run.D[3], run.D[4], run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert calibration run: %w", err)
	}
	debugMsg("STORE", fmt.Sprintf("recorded calibration run %s (%s)", run.ID, run.SourcePath))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalibration(row rowScanner) (*CalibrationRun, error) {
	var (
		run                   CalibrationRun
		id                    string
		createdNs, durationMs int64
		fx, fy, cx, cy, skew  float64
	)
	err := row.Scan(&id, &run.SourcePath, &createdNs, &run.ImageWidth, &run.ImageHeight,
		&run.PatternRows, &run.PatternCols, &run.FramesRead, &run.RawSamples, &run.SolverSamples, &run.RMS,
		&fx, &fy, &cx, &cy, &skew,
		&run.D[0], &run.D[1], &run.D[2], &run.D[3], &run.D[4], &durationMs)
	if err != nil {
		return nil, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("bad run id %q: %w", id, err)
	}
	run.CreatedAt = time.Unix(0, createdNs)
	run.Duration = time.Duration(durationMs) * time.Millisecond
	run.K, err = camera.NewIntrinsics([]float64{fx, skew, cx, 0, fy, cy, 0, 0, 1})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Calibration fetches one run by ID
func (s *Store) Calibration(id uuid.UUID) (*CalibrationRun, error) {
	row := s.QueryRow(`SELECT `+calibrationColumns+` FROM calibration_runs WHERE run_id = ?`, id.String())
	run, err := scanCalibration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: calibration run %s", ErrNotFound, id)
	}
	return run, err
}

// Calibrations lists runs newest first, at most limit when limit > 0
func (s *Store) Calibrations(limit int) ([]CalibrationRun, error) {
	query := `SELECT ` + calibrationColumns + ` FROM calibration_runs ORDER BY created_at_ns DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibration runs: %w", err)
	}
	defer rows.Close()

	var runs []CalibrationRun
	for rows.Next() {
		run, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// LatestCalibration returns the most recent run
func (s *Store) LatestCalibration() (*CalibrationRun, error) {
	runs, err := s.Calibrations(1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%w: no calibration runs recorded", ErrNotFound)
	}
	return &runs[0], nil
}

// Session is one run of the monitor loop. Only counters are kept; ground
// positions are never written.
type Session struct {
	ID               uuid.UUID
	StartedAt        time.Time
	EndedAt          time.Time
	VideoSource      string
	IntrinsicsPath   string
	IntrinsicsSource string
	CalibrationRun   uuid.UUID // uuid.Nil when K came from a file
	CameraHeightM    float64
	DCloseM          float64
	DMaxM            float64
	Frames           int64
	PersonDetections int64
	Projections      int64
}

// StartSession inserts sess with a fresh ID
func (s *Store) StartSession(sess *Session) error {
	sess.ID = uuid.New()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	var runID any
	if sess.CalibrationRun != uuid.Nil {
		runID = sess.CalibrationRun.String()
	}
	_, err := s.Exec(`INSERT INTO monitor_sessions (session_id, started_at_ns, video_source,
		intrinsics_path, intrinsics_source, calibration_run, camera_height_m, d_close_m, d_max_m)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID.String(), sess.StartedAt.UnixNano(), sess.VideoSource,
		sess.IntrinsicsPath, sess.IntrinsicsSource, runID, sess.CameraHeightM, sess.DCloseM, sess.DMaxM)
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// EndSession stores the final counters and end time
func (s *Store) EndSession(sess *Session) error {
	if sess.EndedAt.IsZero() {
		sess.EndedAt = time.Now()
	}
	res, err := s.Exec(`UPDATE monitor_sessions SET ended_at_ns = ?, frames = ?, person_detections = ?,
		projections = ?, camera_height_m = ? WHERE session_id = ?`,
		sess.EndedAt.UnixNano(), sess.Frames, sess.PersonDetections, sess.Projections, sess.CameraHeightM, sess.ID.String())
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sess.ID)
	}
	return nil
}

// SessionByID fetches one session
func (s *Store) SessionByID(id uuid.UUID) (*Session, error) {
	var (
		sess           Session
		sid            string
		startNs        int64
		endNs          sql.NullInt64
		calibrationRun sql.NullString
	)
	err := s.QueryRow(`SELECT session_id, started_at_ns, ended_at_ns, video_source, intrinsics_path,
		intrinsics_source, calibration_run, camera_height_m, d_close_m, d_max_m, frames,
		person_detections, projections FROM monitor_sessions WHERE session_id = ?`, id.String()).Scan(
		&sid, &startNs, &endNs, &sess.VideoSource, &sess.IntrinsicsPath, &sess.IntrinsicsSource,
		&calibrationRun, &sess.CameraHeightM, &sess.DCloseM, &sess.DMaxM, &sess.Frames,
		&sess.PersonDetections, &sess.Projections)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if sess.ID, err = uuid.Parse(sid); err != nil {
		return nil, err
	}
	sess.StartedAt = time.Unix(0, startNs)
	if endNs.Valid {
		sess.EndedAt = time.Unix(0, endNs.Int64)
	}
	if calibrationRun.Valid {
		if sess.CalibrationRun, err = uuid.Parse(calibrationRun.String); err != nil {
			return nil, err
		}
	}
	return &sess, nil
}
