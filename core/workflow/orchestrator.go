// Package workflow implements the inspection-cycle state machine: top-view
// detection, coordinated motion to front-view poses, front detection and
// defect classification, with inference overlapped against hardware motion
// through the background pool.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"inspection-orchestrator/core/capture"
	"inspection-orchestrator/core/detect"
	"inspection-orchestrator/core/fault"
	"inspection-orchestrator/core/health"
	"inspection-orchestrator/core/models"
	"inspection-orchestrator/core/motion"
	"inspection-orchestrator/core/pool"
	"inspection-orchestrator/core/profile"
	"inspection-orchestrator/core/result"
)

// ImageProcessor is the image manipulation capability the workflow needs.
// Implementations live behind the imaging provider.
type ImageProcessor interface {
	// CenterCrop returns the centered square crop of the given side length.
	CenterCrop(image []byte, size int) ([]byte, error)
	// Annotate draws detection overlays and returns the annotated image.
	Annotate(image []byte, dets []models.Detection) ([]byte, error)
	// CropBox extracts a padded bounding-box region.
	CropBox(image []byte, box models.BoundingBox, pad int) ([]byte, error)
}

// History persists the job lifecycle for later queries. All methods are
// best-effort from the orchestrator's point of view.
type History interface {
	CreateJob(job *models.JobContext) error
	RecordEvent(jobID string, from *models.JobState, to models.JobState, reason string) error
	CompleteJob(job *models.JobContext) error
}

// Tracker observes finished cycles for operational metrics.
type Tracker interface {
	RecordCycle(job *models.JobContext)
}

// Archiver ships a finished job directory off the cell. Failures are
// advisory and never affect the job outcome.
type Archiver interface {
	ArchiveJob(ctx context.Context, job *models.JobContext) error
}

// Config wires an orchestrator. History, Tracker and Archiver are optional.
type Config struct {
	Profile *profile.Profile
	Gate    *health.Gate
	Motion  *motion.Coordinator
	Capture *capture.Scheduler
	Top     *detect.Stage
	Front   *detect.Stage
	Defect  *detect.Stage
	Pool    *pool.Pool
	Writer  *result.Writer
	Images  ImageProcessor

	History  History
	Tracker  Tracker
	Archiver Archiver
}

// Status is the externally visible orchestrator snapshot.
type Status struct {
	State       models.JobState  `json:"state"`
	JobID       string           `json:"job_id,omitempty"`
	PartID      string           `json:"part_id,omitempty"`
	Result      models.JobResult `json:"result,omitempty"`
	Attachments int              `json:"attachments"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Orchestrator owns the job lifecycle. At most one job runs at a time;
// StartJob while a job is active is rejected. During a job the stage-2
// loop runs on one goroutine and all inference runs on the pool's single
// worker; per-record outcomes cross between the two only through the
// record's guarded commit methods.
type Orchestrator struct {
	cfg Config

	mu     sync.Mutex
	state  models.JobState
	status Status
	cancel context.CancelFunc

	// jobCtx is written in begin under mu and read only by the cycle
	// goroutine it was created for.
	jobCtx context.Context
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:    cfg,
		state:  models.StateIdle,
		status: Status{State: models.StateIdle},
	}
}

// State returns the current state machine state.
func (o *Orchestrator) State() models.JobState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Snapshot returns the current (or most recent) job status.
func (o *Orchestrator) Snapshot() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// StartJob begins an inspection cycle asynchronously. Preconditions: the
// orchestrator is idle, the part ID is non-empty and the health gate
// reports ready. A failing precondition leaves the state untouched and no
// job is created.
func (o *Orchestrator) StartJob(partID string) (*models.JobContext, error) {
	job, err := o.begin(partID)
	if err != nil {
		return nil, err
	}
	go o.runCycle(job)
	return job, nil
}

// RunJob is the synchronous variant of StartJob; it returns after the
// cycle reaches a terminal state.
func (o *Orchestrator) RunJob(partID string) (*models.JobContext, error) {
	job, err := o.begin(partID)
	if err != nil {
		return nil, err
	}
	o.runCycle(job)
	return job, nil
}

// Abort requests cancellation of the running job. In-flight device calls
// are asked to stop through their context; pending background tasks are
// drained per the configured policy and partial results are persisted.
func (o *Orchestrator) Abort() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) begin(partID string) (*models.JobContext, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != models.StateIdle {
		return nil, fmt.Errorf("job already running (state %s)", o.state)
	}
	if partID == "" {
		return nil, errors.New("part ID must not be empty")
	}
	if hs := o.cfg.Gate.Check(); !hs.Ready {
		return nil, fault.New(fault.KindHealthCheck, "health", "cell not ready: %v", hs.Blockers())
	}

	now := time.Now()
	folder, dir, err := o.cfg.Writer.CreateJobDir(partID, now)
	if err != nil {
		return nil, err
	}

	job := &models.JobContext{
		ID:         uuid.NewString(),
		PartID:     partID,
		PartFolder: folder,
		StorageDir: dir,
		State:      models.StateStage1Running,
		Result:     models.ResultPending,
		CreatedAt:  now,
		StartedAt:  now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.state = models.StateStage1Running
	started := now
	o.status = Status{
		State:     models.StateStage1Running,
		JobID:     job.ID,
		PartID:    partID,
		Result:    models.ResultPending,
		StartedAt: &started,
	}
	o.jobCtx = ctx

	if o.cfg.History != nil {
		if err := o.cfg.History.CreateJob(job); err != nil {
			log.Printf("[workflow] history create failed for job %s: %v", job.ID, err)
		}
	}
	o.recordEvent(job, nil, models.StateStage1Running, "job_started")
	log.Printf("[workflow] job %s started for part %q -> %s", job.ID, partID, dir)
	return job, nil
}

func (o *Orchestrator) runCycle(job *models.JobContext) {
	ctx := o.jobCtx

	records, err := o.runStage1(ctx, job)
	if err != nil {
		o.finalize(job, err, ctx.Err() != nil)
		return
	}
	job.Records = records
	o.mu.Lock()
	o.status.Attachments = len(records)
	o.mu.Unlock()

	if len(records) == 0 {
		// Normal outcome: nothing to visit, stages 2-4 are skipped.
		log.Printf("[workflow] job %s: no detections; completing", job.ID)
		o.finalize(job, nil, false)
		return
	}

	tasks, loopErr := o.runStage2(ctx, job, records)
	o.drain(job, tasks)
	o.finalize(job, loopErr, ctx.Err() != nil)
}

// runStage1 captures the top view, runs top detection and builds the
// ordered attachment records.
func (o *Orchestrator) runStage1(ctx context.Context, job *models.JobContext) ([]*models.AttachmentRecord, error) {
	frame, err := o.cfg.Capture.Capture(ctx, "top")
	if err != nil {
		return nil, err
	}
	if _, err := o.cfg.Writer.SaveStage(job, 1, "top_raw", 0, frame); err != nil {
		return nil, err
	}

	dets, err := o.cfg.Top.Run(ctx, frame)
	if err != nil {
		return nil, err
	}
	log.Printf("[step1] job %s: %d detection(s)", job.ID, len(dets))

	if ann, aerr := o.cfg.Images.Annotate(frame, dets); aerr != nil {
		log.Printf("[step1] annotation skipped: %v", aerr)
	} else if _, serr := o.cfg.Writer.SaveStage(job, 1, "top_annotated", 0, ann); serr != nil {
		return nil, serr
	}

	records := make([]*models.AttachmentRecord, 0, len(dets))
	for _, d := range dets {
		records = append(records, &models.AttachmentRecord{Detection: d})
	}
	return records, nil
}

// runStage2 walks the visitation order, moving both axes to each pose,
// capturing the front view and handing the crop to the background pool.
// A camera timeout or motion fault aborts the remaining loop; already
// enqueued work still drains.
func (o *Orchestrator) runStage2(ctx context.Context, job *models.JobContext, records []*models.AttachmentRecord) (map[*models.AttachmentRecord]*pool.Task, error) {
	o.transition(job, models.StateStage2Running, "stage1_complete")

	tasks := make(map[*models.AttachmentRecord]*pool.Task, len(records))
	for _, rec := range VisitationOrder(records) {
		if ctx.Err() != nil {
			return tasks, nil
		}
		rec := rec
		idx := rec.Index()

		rec.Target = motion.TargetFor(rec.Detection, o.cfg.Profile)
		if err := o.cfg.Motion.MoveTo(ctx, rec.Target); err != nil {
			if ctx.Err() != nil {
				return tasks, nil
			}
			return tasks, err
		}
		log.Printf("[step2] idx %d: pose reached (%.2f deg, %.2f mm)", idx, rec.Target.AngleDeg, rec.Target.AxisMM)

		frame, err := o.cfg.Capture.Capture(ctx, "front")
		if err != nil {
			if ctx.Err() != nil {
				return tasks, nil
			}
			return tasks, err
		}

		fc := &models.FrontCapture{}
		rawPath, err := o.cfg.Writer.SaveStage(job, 2, "front_initial", idx, frame)
		if err != nil {
			return tasks, err
		}
		fc.RawPath = rawPath

		crop, err := o.cfg.Images.CenterCrop(frame, o.cfg.Profile.CropSizePx)
		if err != nil {
			rec.Fail(fault.Wrap(fault.KindInference, "imaging", err))
			log.Printf("[step2] idx %d: crop failed, record skipped: %v", idx, err)
			continue
		}

		if o.cfg.Profile.AlignmentCorrection {
			frame, crop = o.alignCapture(ctx, job, rec, frame, crop, fc)
		}

		cropPath, err := o.cfg.Writer.SaveStage(job, 2, "front_crop", idx, crop)
		if err != nil {
			return tasks, err
		}
		fc.CropPath = cropPath
		fc.Crop = crop
		rec.Capture = fc

		tasks[rec] = o.cfg.Pool.Submit(fmt.Sprintf("attachment-%03d", idx), func(taskCtx context.Context) error {
			return o.processRecord(taskCtx, job, rec)
		})
	}
	return tasks, nil
}

// alignCapture runs the optional front alignment correction. The front
// inference is routed through the pool so the detector never runs outside
// the single worker. Any failure keeps the uncorrected capture.
func (o *Orchestrator) alignCapture(ctx context.Context, job *models.JobContext, rec *models.AttachmentRecord, frame, crop []byte, fc *models.FrontCapture) ([]byte, []byte) {
	idx := rec.Index()

	var dets []models.Detection
	task := o.cfg.Pool.Submit(fmt.Sprintf("align-%03d", idx), func(taskCtx context.Context) error {
		var err error
		dets, err = o.cfg.Front.Run(taskCtx, crop)
		return err
	})
	if err := task.Wait(ctx); err != nil {
		log.Printf("[step2] idx %d: alignment inference failed, keeping raw capture: %v", idx, err)
		return frame, crop
	}
	best := detect.SelectBest(dets, o.cfg.Profile.CropSizePx, o.cfg.Profile.CropSizePx)
	if best == nil {
		log.Printf("[step2] idx %d: no detection for alignment", idx)
		return frame, crop
	}

	dx := best.Center().X - float64(o.cfg.Profile.CropSizePx)/2.0
	if motion.WithinTolerance(dx, o.cfg.Profile) {
		log.Printf("[step2] idx %d: alignment within tolerance (dx=%.2fpx)", idx, dx)
		return frame, crop
	}

	_, currentMM := o.cfg.Motion.Position()
	corrected := rec.Target
	corrected.AxisMM = motion.CorrectionMM(currentMM, dx, o.cfg.Profile)
	if err := o.cfg.Motion.MoveTo(ctx, corrected); err != nil {
		log.Printf("[step2] idx %d: correction move failed: %v", idx, err)
		return frame, crop
	}

	newFrame, err := o.cfg.Capture.Capture(ctx, "front")
	if err != nil {
		log.Printf("[step2] idx %d: corrected capture failed: %v", idx, err)
		return frame, crop
	}
	newCrop, err := o.cfg.Images.CenterCrop(newFrame, o.cfg.Profile.CropSizePx)
	if err != nil {
		log.Printf("[step2] idx %d: corrected crop failed: %v", idx, err)
		return frame, crop
	}
	if path, err := o.cfg.Writer.SaveStage(job, 2, "front_corrected", idx, newFrame); err == nil {
		fc.CorrectedPath = path
	}
	log.Printf("[step2] idx %d: alignment corrected (dx=%.2fpx -> %.2fmm)", idx, dx, corrected.AxisMM)
	return newFrame, newCrop
}

// processRecord is the background task for one attachment: front detection
// (stage 3) and, when an attachment is found, defect classification
// (stage 4). Runs on the pool's single worker. The outcome is committed
// through the record in one step, so a drain-timeout abandonment never
// interleaves with a partial result.
func (o *Orchestrator) processRecord(ctx context.Context, job *models.JobContext, rec *models.AttachmentRecord) error {
	best, findings, err := o.inspectAttachment(ctx, job, rec)
	if !rec.Complete(best, findings, err) {
		log.Printf("[step3] idx %d: finished after abandonment; result discarded", rec.Index())
	}
	return err
}

func (o *Orchestrator) inspectAttachment(ctx context.Context, job *models.JobContext, rec *models.AttachmentRecord) (*models.Detection, []models.DefectFinding, error) {
	idx := rec.Index()
	crop := rec.Capture.Crop

	dets, err := o.cfg.Front.Run(ctx, crop)
	if err != nil {
		return nil, nil, err
	}
	if len(dets) == 0 {
		log.Printf("[step3] idx %d: no attachment detected", idx)
		if ann, aerr := o.cfg.Images.Annotate(crop, nil); aerr == nil {
			if _, serr := o.cfg.Writer.SaveStage(job, 3, "front", idx, ann); serr != nil {
				return nil, nil, serr
			}
		}
		return nil, nil, nil
	}

	best := detect.SelectBest(dets, o.cfg.Profile.CropSizePx, o.cfg.Profile.CropSizePx)

	if ann, aerr := o.cfg.Images.Annotate(crop, []models.Detection{*best}); aerr != nil {
		log.Printf("[step3] idx %d: annotation skipped: %v", idx, aerr)
	} else if _, serr := o.cfg.Writer.SaveStage(job, 3, "front", idx, ann); serr != nil {
		return best, nil, serr
	}

	bbox, err := o.cfg.Images.CropBox(crop, best.Box, o.cfg.Profile.BBoxPadPx)
	if err != nil {
		return best, nil, fault.Wrap(fault.KindInference, "imaging", err)
	}
	if _, err := o.cfg.Writer.SaveStage(job, 3, "front_bbox", idx, bbox); err != nil {
		return best, nil, err
	}

	raw, err := o.cfg.Defect.Run(ctx, bbox)
	if err != nil {
		return best, nil, err
	}
	findings := make([]models.DefectFinding, 0, len(raw))
	for _, d := range raw {
		findings = append(findings, models.DefectFinding{
			Class: d.Class,
			Score: d.Score,
			Area:  d.Box.Area(),
			Box:   d.Box,
		})
	}

	if ann, aerr := o.cfg.Images.Annotate(bbox, raw); aerr != nil {
		log.Printf("[step4] idx %d: annotation skipped: %v", idx, aerr)
	} else if _, serr := o.cfg.Writer.SaveStage(job, 4, "defect", idx, ann); serr != nil {
		return best, findings, serr
	}

	log.Printf("[step4] idx %d: %d defect finding(s)", idx, len(findings))
	return best, findings, nil
}

// drain waits for outstanding background work. On timeout the unfinished
// tasks get their contexts cancelled and their records are abandoned
// through the guarded record commit, so a still-running worker cannot
// write over the abandonment; they do not block job completion.
func (o *Orchestrator) drain(job *models.JobContext, tasks map[*models.AttachmentRecord]*pool.Task) {
	o.transition(job, models.StateDraining, "stage2_complete")

	if err := o.cfg.Pool.Drain(o.cfg.Profile.DrainTimeout()); err != nil {
		log.Printf("[workflow] job %s: %v", job.ID, err)
		for rec, task := range tasks {
			if task.Finished() {
				continue
			}
			task.Abandon()
			abandonErr := fault.New(fault.KindInference, "pool", "abandoned: inference did not finish before drain timeout")
			if rec.Abandon(abandonErr) {
				log.Printf("[workflow] idx %d: background work abandoned", rec.Index())
			}
		}
	}

	// Return both axes to home so the next cycle starts from a known pose.
	homeCtx, cancel := context.WithTimeout(context.Background(), o.cfg.Profile.TurntableTimeout())
	defer cancel()
	if err := o.cfg.Motion.Home(homeCtx, o.cfg.Profile.HomeMM()); err != nil {
		log.Printf("[workflow] job %s: return to home failed: %v", job.ID, err)
	}
}

// finalize computes the terminal state, persists the cycle-time record and
// hands the job off to history, metrics and archival. A storage failure
// escalates to Faulted even when the inspection itself succeeded.
func (o *Orchestrator) finalize(job *models.JobContext, loopErr error, aborted bool) {
	job.FinishedAt = time.Now()

	var storageErr error
	for _, rec := range job.Records {
		if err := rec.Err(); fault.Is(err, fault.KindStorage) {
			storageErr = err
			break
		}
	}

	switch {
	case aborted:
		job.State = models.StateAborted
		job.Result = models.ResultError
		job.Err = errors.New("job aborted by operator")
	case loopErr != nil:
		job.State = models.StateFaulted
		job.Result = models.ResultError
		job.Err = loopErr
	case storageErr != nil:
		job.State = models.StateFaulted
		job.Result = models.ResultError
		job.Err = storageErr
	default:
		job.State = models.StateCompleted
		job.Result = result.Aggregate(job.Records, o.cfg.Profile.DefectScoreThreshold)
	}

	if err := o.cfg.Writer.WriteCycleTime(job); err != nil {
		log.Printf("[workflow] job %s: cycle-time record failed: %v", job.ID, err)
		job.State = models.StateFaulted
		job.Result = models.ResultError
		if job.Err == nil {
			job.Err = err
		}
	}

	o.recordEvent(job, nil, job.State, "job_finished")
	if o.cfg.History != nil {
		if err := o.cfg.History.CompleteJob(job); err != nil {
			log.Printf("[workflow] job %s: history update failed: %v", job.ID, err)
		}
	}
	if o.cfg.Tracker != nil {
		o.cfg.Tracker.RecordCycle(job)
	}
	if o.cfg.Archiver != nil && job.State == models.StateCompleted {
		archCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := o.cfg.Archiver.ArchiveJob(archCtx, job); err != nil {
			log.Printf("[workflow] job %s: archive skipped: %v", job.ID, err)
		}
	}

	o.mu.Lock()
	o.state = models.StateIdle
	finished := job.FinishedAt
	o.status.State = job.State
	o.status.Result = job.Result
	o.status.FinishedAt = &finished
	if job.Err != nil {
		o.status.Error = job.Err.Error()
	}
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.mu.Unlock()

	log.Printf("[workflow] job %s finished: state=%s result=%s cycle=%.2fs",
		job.ID, job.State, job.Result, job.CycleTime().Seconds())
}

func (o *Orchestrator) transition(job *models.JobContext, to models.JobState, reason string) {
	o.mu.Lock()
	from := o.state
	o.state = to
	o.status.State = to
	o.mu.Unlock()
	job.State = to
	o.recordEvent(job, &from, to, reason)
}

func (o *Orchestrator) recordEvent(job *models.JobContext, from *models.JobState, to models.JobState, reason string) {
	if o.cfg.History == nil {
		return
	}
	if err := o.cfg.History.RecordEvent(job.ID, from, to, reason); err != nil {
		log.Printf("[workflow] event record failed for job %s: %v", job.ID, err)
	}
}
