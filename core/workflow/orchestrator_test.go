package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inspection-orchestrator/core/capture"
	"inspection-orchestrator/core/detect"
	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/health"
	"inspection-orchestrator/core/models"
	"inspection-orchestrator/core/motion"
	"inspection-orchestrator/core/pool"
	"inspection-orchestrator/core/profile"
	"inspection-orchestrator/core/result"
	"inspection-orchestrator/providers/camera"
	"inspection-orchestrator/providers/plc"
	"inspection-orchestrator/providers/vision"
)

// passthroughImages avoids real decoding in workflow tests; the imaging
// provider has its own tests.
type passthroughImages struct{}

func (passthroughImages) CenterCrop(img []byte, size int) ([]byte, error) { return img, nil }
func (passthroughImages) Annotate(img []byte, dets []models.Detection) ([]byte, error) {
	return img, nil
}
func (passthroughImages) CropBox(img []byte, box models.BoundingBox, pad int) ([]byte, error) {
	return img, nil
}

type testCell struct {
	orch      *Orchestrator
	profile   *profile.Profile
	turntable *plc.SimTurntable
	axis      *plc.SimLinearAxis
	topCam    *camera.SimCamera
	frontCam  *camera.SimCamera
	pool      *pool.Pool
	root      string
}

// tapDetector runs a callback before delegating to the wrapped detector;
// tests use it to mutate the cell at a known point in the cycle.
type tapDetector struct {
	*vision.ScriptedDetector
	before func()
}

func (d *tapDetector) Infer(ctx context.Context, image []byte) ([]models.Detection, error) {
	if d.before != nil {
		d.before()
	}
	return d.ScriptedDetector.Infer(ctx, image)
}

func topDetections(scores ...float64) []models.Detection {
	phis := []float64{0.5, 2.0, -1.2, 3.0}
	dets := make([]models.Detection, len(scores))
	for i, s := range scores {
		dets[i] = models.Detection{
			Class: "attachment",
			Score: s,
			Phi:   phis[i%len(phis)],
			Box:   models.BoundingBox{X: 1000 + float64(i)*50, Y: 900, Width: 160, Height: 160},
		}
	}
	return dets
}

func newTestCell(t *testing.T, top, front, defect detect.Detector) *testCell {
	t.Helper()

	p := profile.Default()
	p.CaptureTimeoutMS = 200
	p.DrainTimeoutMS = 2000

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	turntable := plc.NewSimTurntable(0)
	axis := plc.NewSimLinearAxis(p.AxisTravelMM, 0)
	coordinator := motion.NewCoordinator(turntable, axis, p.TurntableTimeout(), p.AxisTimeout())
	require.NoError(t, coordinator.Calibrate(ctx))
	require.NoError(t, coordinator.Home(ctx, p.HomeMM()))

	topCam := camera.NewSimCamera("top", 64, 48)
	frontCam := camera.NewSimCamera("front", 64, 48)
	scheduler := capture.NewScheduler(nil, p.CaptureTimeout(), 0)
	scheduler.Register(topCam)
	scheduler.Register(frontCam)

	workPool := pool.New()
	workPool.Start(ctx)

	root := t.TempDir()
	writer := result.NewWriter(root)

	gate := health.NewGate()
	gate.Register("turntable", func() error {
		if !turntable.Connected() || !turntable.Homed() {
			return errors.New("not ready")
		}
		return nil
	})
	gate.Register("storage", writer.CheckWritable)

	orch := NewOrchestrator(Config{
		Profile: p,
		Gate:    gate,
		Motion:  coordinator,
		Capture: scheduler,
		Top:     detect.NewStage(top, p.TopScoreThreshold),
		Front:   detect.NewStage(front, p.FrontScoreThreshold),
		Defect:  detect.NewStage(defect, p.DefectScoreThreshold),
		Pool:    workPool,
		Writer:  writer,
		Images:  passthroughImages{},
	})

	return &testCell{
		orch: orch, profile: p,
		turntable: turntable, axis: axis,
		topCam: topCam, frontCam: frontCam,
		pool: workPool, root: root,
	}
}

// jobDir resolves the single job directory created for a part during the
// cycle.
func jobDir(root, partID string) string {
	dirs, _ := filepath.Glob(filepath.Join(root, "captures", partID, "*", "*"))
	if len(dirs) != 1 {
		return ""
	}
	return dirs[0]
}

func frontDetection(p *profile.Profile) []models.Detection {
	c := float64(p.CropSizePx) / 2.0
	return []models.Detection{{
		Class: "attachment",
		Score: 0.85,
		Box:   models.BoundingBox{X: c - 100, Y: c - 100, Width: 200, Height: 200},
	}}
}

func readCycleTime(t *testing.T, job *models.JobContext) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(job.StorageDir, "cycle_time.txt"))
	require.NoError(t, err)
	return string(data)
}

func TestRunJobNoDetections(t *testing.T) {
	cell := newTestCell(t,
		vision.NewScriptedDetector("top"),
		vision.NewScriptedDetector("front"),
		vision.NewScriptedDetector("defect"),
	)

	job, err := cell.orch.RunJob("PART-042")
	require.NoError(t, err)

	require.Equal(t, models.StateCompleted, job.State)
	require.Equal(t, models.ResultPass, job.Result)
	require.Empty(t, job.Records)

	// Stage-1 artifact and the cycle-time record are written even for
	// the zero-detection case.
	_, err = os.Stat(filepath.Join(job.StorageDir, "step-01", "step-01_top_raw.png"))
	require.NoError(t, err)
	line := readCycleTime(t, job)
	require.True(t, strings.HasSuffix(line, "\n"))
	require.NotEmpty(t, strings.TrimSpace(line))

	// The cell is idle again.
	require.Equal(t, models.StateIdle, cell.orch.State())
}

func TestRunJobHappyPathFail(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.97, 0.93, 0.91)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect", []models.Detection{{
			Class: "scratch",
			Score: 0.9,
			Box:   models.BoundingBox{X: 10, Y: 10, Width: 40, Height: 20},
		}}),
	)

	job, err := cell.orch.RunJob("PART-001")
	require.NoError(t, err)

	require.Equal(t, models.StateCompleted, job.State)
	require.Equal(t, models.ResultFail, job.Result)
	require.Len(t, job.Records, 3)

	for _, rec := range job.Records {
		require.True(t, rec.Finished())
		require.NoError(t, rec.Err())
		require.NotNil(t, rec.Capture)
		require.NotNil(t, rec.BestDetection())
		require.Len(t, rec.DefectFindings(), 1)

		idx := rec.Index()
		for _, name := range []string{
			filepath.Join("step-02", result.StageFileName(2, "front_initial", idx)),
			filepath.Join("step-02", result.StageFileName(2, "front_crop", idx)),
			filepath.Join("step-03", result.StageFileName(3, "front", idx)),
			filepath.Join("step-03", result.StageFileName(3, "front_bbox", idx)),
			filepath.Join("step-04", result.StageFileName(4, "defect", idx)),
		} {
			_, err := os.Stat(filepath.Join(job.StorageDir, name))
			require.NoError(t, err, name)
		}
	}
}

func TestRunJobPassWhenFindingsBelowThreshold(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect", []models.Detection{{
			Class: "smudge",
			Score: 0.3,
			Box:   models.BoundingBox{X: 5, Y: 5, Width: 10, Height: 10},
		}}),
	)

	job, err := cell.orch.RunJob("PART-002")
	require.NoError(t, err)
	require.Equal(t, models.ResultPass, job.Result)
}

func TestTopThresholdFiltersDetections(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.5, 0.85)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)

	job, err := cell.orch.RunJob("PART-003")
	require.NoError(t, err)
	// The 0.5 detection is below the 0.8 threshold and gets no record;
	// indices stay dense over the accepted detections.
	require.Len(t, job.Records, 2)
	require.Equal(t, 1, job.Records[0].Index())
	require.Equal(t, 2, job.Records[1].Index())
}

func TestStartJobRejectedWhenNotReady(t *testing.T) {
	cell := newTestCell(t,
		vision.NewScriptedDetector("top"),
		vision.NewScriptedDetector("front"),
		vision.NewScriptedDetector("defect"),
	)
	cell.turntable.Disconnect()

	_, err := cell.orch.StartJob("PART-004")
	require.Error(t, err)
	require.True(t, fault.Is(err, fault.KindHealthCheck))
	require.Equal(t, models.StateIdle, cell.orch.State())
}

func TestStartJobRejectedForEmptyPartID(t *testing.T) {
	cell := newTestCell(t,
		vision.NewScriptedDetector("top"),
		vision.NewScriptedDetector("front"),
		vision.NewScriptedDetector("defect"),
	)

	_, err := cell.orch.StartJob("")
	require.Error(t, err)
	require.Equal(t, models.StateIdle, cell.orch.State())
}

func TestStartJobRejectedWhileRunning(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.9)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)
	cell.topCam.Latency = 50 * time.Millisecond
	cell.frontCam.Latency = 50 * time.Millisecond

	_, err := cell.orch.StartJob("PART-005")
	require.NoError(t, err)

	_, err = cell.orch.StartJob("PART-006")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already running")

	require.Eventually(t, func() bool {
		return cell.orch.State() == models.StateIdle
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCameraTimeoutFaultsJobButDrains(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.9, 0.88)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)
	// Every front capture attempt, including the single retry, times
	// out; the loop aborts at the first pose.
	cell.frontCam.ForceTimeouts(100)

	job, err := cell.orch.RunJob("PART-007")
	require.NoError(t, err)

	require.Equal(t, models.StateFaulted, job.State)
	require.Equal(t, models.ResultError, job.Result)
	require.True(t, fault.Is(job.Err, fault.KindCameraTimeout))

	// Stage 1 ran, so the records exist; none reached the background
	// worker.
	require.Len(t, job.Records, 3)
	for _, rec := range job.Records {
		require.Nil(t, rec.Capture)
	}

	// Cycle time is still recorded for faulted jobs.
	require.NotEmpty(t, readCycleTime(t, job))
}

func TestInferenceErrorMarksRecordOnly(t *testing.T) {
	front := vision.NewScriptedDetector("front")
	front.FailWith = errors.New("runtime exploded")

	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.9)),
		front,
		vision.NewScriptedDetector("defect"),
	)

	job, err := cell.orch.RunJob("PART-008")
	require.NoError(t, err)

	// The job completes; only the records carry the inference fault.
	require.Equal(t, models.StateCompleted, job.State)
	require.Equal(t, models.ResultPass, job.Result)
	for _, rec := range job.Records {
		require.True(t, rec.Finished())
		require.True(t, fault.Is(rec.Err(), fault.KindInference))
	}
}

func TestAbortDuringStage2(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.9, 0.88, 0.85)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)
	cell.frontCam.Latency = 50 * time.Millisecond

	job, err := cell.orch.StartJob("PART-009")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return cell.orch.State() == models.StateStage2Running
	}, 2*time.Second, 5*time.Millisecond)
	cell.orch.Abort()

	require.Eventually(t, func() bool {
		return cell.orch.State() == models.StateIdle
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, models.StateAborted, job.State)
	require.Equal(t, models.ResultError, job.Result)
	require.NotEmpty(t, readCycleTime(t, job))
}

func TestReturnToHomeAfterJob(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)

	_, err := cell.orch.RunJob("PART-010")
	require.NoError(t, err)

	require.InDelta(t, p.HomeMM(), cell.axis.PositionMM(), 0.01)
	require.InDelta(t, 0, cell.turntable.Angle(), 0.01)
}

func TestMotionFaultFaultsJob(t *testing.T) {
	p := profile.Default()
	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95, 0.9)),
		vision.NewScriptedDetector("front", frontDetection(p)),
		vision.NewScriptedDetector("defect"),
	)
	cell.turntable.FailNext = errors.New("following error")

	job, err := cell.orch.RunJob("PART-011")
	require.NoError(t, err)

	require.Equal(t, models.StateFaulted, job.State)
	require.True(t, fault.Is(job.Err, fault.KindMotionFault))
}

func TestDrainTimeoutAbandonsUnfinishedRecords(t *testing.T) {
	p := profile.Default()
	front := vision.NewScriptedDetector("front", frontDetection(p))
	front.Delay = 500 * time.Millisecond

	cell := newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95)),
		front,
		vision.NewScriptedDetector("defect"),
	)
	cell.profile.DrainTimeoutMS = 30

	job, err := cell.orch.RunJob("PART-012")
	require.NoError(t, err)

	// The slow inference does not block completion; the record carries
	// the abandonment marker instead of a result.
	require.Equal(t, models.StateCompleted, job.State)
	require.Equal(t, models.ResultPass, job.Result)
	require.Len(t, job.Records, 1)

	rec := job.Records[0]
	require.True(t, rec.Finished())
	require.True(t, fault.Is(rec.Err(), fault.KindInference))
	require.Contains(t, rec.Err().Error(), "abandoned")

	// Once the cancelled task unwinds, its late outcome is discarded
	// rather than written over the abandonment.
	require.Eventually(t, func() bool {
		return cell.pool.Pending() == 0
	}, 2*time.Second, 5*time.Millisecond)
	require.True(t, fault.Is(rec.Err(), fault.KindInference))
	require.Nil(t, rec.BestDetection())
	require.Empty(t, rec.DefectFindings())
}

func TestBackgroundStorageFailureFaultsJob(t *testing.T) {
	p := profile.Default()
	var cell *testCell
	front := &tapDetector{
		ScriptedDetector: vision.NewScriptedDetector("front", frontDetection(p)),
		before: func() {
			// A plain file at the stage-3 directory path makes the
			// background write fail after the inspection succeeded.
			if dir := jobDir(cell.root, "PART-013"); dir != "" {
				os.WriteFile(filepath.Join(dir, "step-03"), []byte("x"), 0o644)
			}
		},
	}
	cell = newTestCell(t,
		vision.NewScriptedDetector("top", topDetections(0.95)),
		front,
		vision.NewScriptedDetector("defect"),
	)

	job, err := cell.orch.RunJob("PART-013")
	require.NoError(t, err)

	require.Equal(t, models.StateFaulted, job.State)
	require.Equal(t, models.ResultError, job.Result)
	require.True(t, fault.Is(job.Err, fault.KindStorage))
	require.Len(t, job.Records, 1)
	require.True(t, fault.Is(job.Records[0].Err(), fault.KindStorage))
}

func TestCycleTimeWriteFailurePromotesToFaulted(t *testing.T) {
	var cell *testCell
	top := &tapDetector{
		ScriptedDetector: vision.NewScriptedDetector("top"),
		before: func() {
			// A directory at the cycle_time.txt path makes the append
			// fail during finalization.
			if dir := jobDir(cell.root, "PART-014"); dir != "" {
				os.Mkdir(filepath.Join(dir, "cycle_time.txt"), 0o755)
			}
		},
	}
	cell = newTestCell(t,
		top,
		vision.NewScriptedDetector("front"),
		vision.NewScriptedDetector("defect"),
	)

	job, err := cell.orch.RunJob("PART-014")
	require.NoError(t, err)

	// Nothing to visit, so the inspection itself was clean; the failed
	// cycle-time record still forces the faulted outcome.
	require.Empty(t, job.Records)
	require.Equal(t, models.StateFaulted, job.State)
	require.Equal(t, models.ResultError, job.Result)
	require.True(t, fault.Is(job.Err, fault.KindStorage))
}
