package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"inspection-orchestrator/api/rest/routes"
	"inspection-orchestrator/config"
	"inspection-orchestrator/core/capture"
	"inspection-orchestrator/core/detect"
	"inspection-orchestrator/core/health"
	"inspection-orchestrator/core/models"
	"inspection-orchestrator/core/monitoring"
	"inspection-orchestrator/core/motion"
	"inspection-orchestrator/core/pool"
	"inspection-orchestrator/core/profile"
	"inspection-orchestrator/core/repository"
	"inspection-orchestrator/core/result"
	"inspection-orchestrator/core/workflow"
	"inspection-orchestrator/providers/camera"
	"inspection-orchestrator/providers/imaging"
	"inspection-orchestrator/providers/light"
	"inspection-orchestrator/providers/plc"
	"inspection-orchestrator/providers/vision"
	"inspection-orchestrator/storage"
)

func main() {
	cfg := config.Load()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Cell profile
	p := profile.Default()
	if cfg.ProfilePath != "" {
		var err error
		p, err = profile.Load(cfg.ProfilePath)
		if err != nil {
			log.Fatalf("Failed to load profile: %v", err)
		}
		log.Printf("Profile loaded from %s", cfg.ProfilePath)
	}

	// History database (optional)
	var db *repository.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		log.Println("Database connected successfully")
	}

	// Motion axes
	turntable := plc.NewSimTurntable(90)
	axis := plc.NewSimLinearAxis(p.AxisTravelMM, 50)
	coordinator := motion.NewCoordinator(turntable, axis, p.TurntableTimeout(), p.AxisTimeout())

	// Initial homing; failures leave the gate closed until resolved.
	if err := coordinator.Calibrate(ctx); err != nil {
		log.Printf("Axis calibration failed: %v", err)
	}
	if err := coordinator.Home(ctx, p.HomeMM()); err != nil {
		log.Printf("Homing failed: %v", err)
	}

	// Cameras and light
	lightCtl := light.NewSimController()
	scheduler := capture.NewScheduler(lightCtl, p.CaptureTimeout(), p.LightDwell())
	scheduler.Register(camera.NewSimCamera("top", p.TopWidthPx, p.TopHeightPx))
	scheduler.Register(camera.NewSimCamera("front", int(p.FrontImageWidthPx), p.TopHeightPx))
	scheduler.SetCurrent("top", p.TopCurrentMA)
	scheduler.SetCurrent("front", p.FrontCurrentMA)

	// Detection stages
	topDet, frontDet, defectDet, err := buildDetectors(cfg, p)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}
	topStage := detect.NewStage(topDet, p.TopScoreThreshold)
	frontStage := detect.NewStage(frontDet, p.FrontScoreThreshold)
	defectStage := detect.NewStage(defectDet, p.DefectScoreThreshold)

	// Background inference pool
	workPool := pool.New()
	workPool.Start(ctx)

	// Artifact storage
	writer := result.NewWriter(cfg.StorageRoot)

	// Health gate
	gate := health.NewGate()
	gate.Register("turntable", func() error {
		if !turntable.Connected() {
			return errors.New("not connected")
		}
		if !turntable.Homed() {
			return errors.New("not homed")
		}
		return nil
	})
	gate.Register("linear_axis", func() error {
		if !axis.Connected() {
			return errors.New("not connected")
		}
		if !axis.Calibrated() {
			return errors.New("not calibrated")
		}
		return nil
	})
	gate.Register("camera.top", cameraCheck(scheduler, "top"))
	gate.Register("camera.front", cameraCheck(scheduler, "front"))
	gate.Register("model.top", stageCheck(topStage))
	gate.Register("model.front", stageCheck(frontStage))
	gate.Register("model.defect", stageCheck(defectStage))
	gate.Register("storage", writer.CheckWritable)
	gate.RegisterAdvisory("light", func() error {
		if !lightCtl.Reachable() {
			return errors.New("unreachable")
		}
		return nil
	})

	// Metrics and optional archival
	tracker := monitoring.NewCycleTracker()
	var archiver workflow.Archiver
	if cfg.S3Bucket != "" {
		a, err := storage.NewArchiver(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.StorageRoot)
		if err != nil {
			log.Printf("Archiver disabled: %v", err)
		} else {
			archiver = a
			log.Printf("Archiving to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
		}
	}

	orchCfg := workflow.Config{
		Profile:  p,
		Gate:     gate,
		Motion:   coordinator,
		Capture:  scheduler,
		Top:      topStage,
		Front:    frontStage,
		Defect:   defectStage,
		Pool:     workPool,
		Writer:   writer,
		Images:   imaging.NewProcessor(),
		Tracker:  tracker,
		Archiver: archiver,
	}
	if db != nil {
		orchCfg.History = repository.NewInspectionRepository(db)
	}
	orchestrator := workflow.NewOrchestrator(orchCfg)

	r := mux.NewRouter()
	routes.SetupRoutes(r, orchestrator, gate, db, tracker)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	orchestrator.Abort()
	workPool.Stop()
	if err := server.Shutdown(context.Background()); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}

func cameraCheck(s *capture.Scheduler, role string) health.CheckFunc {
	return func() error {
		cam := s.Camera(role)
		if cam == nil {
			return errors.New("not registered")
		}
		if !cam.Connected() {
			return errors.New("not connected")
		}
		return nil
	}
}

func stageCheck(s *detect.Stage) health.CheckFunc {
	return func() error {
		if !s.Ready() {
			return errors.New("model not loaded")
		}
		return nil
	}
}

// buildDetectors selects the vision backend. The DNN backend refuses to
// start on a bad bundle; the sim backend replays fixed detections for
// bench runs without hardware.
func buildDetectors(cfg *config.Config, p *profile.Profile) (top, front, defect detect.Detector, err error) {
	if cfg.VisionBackend == "dnn" {
		topDNN, err := vision.NewDNNDetector(cfg.TopModelDir)
		if err != nil {
			return nil, nil, nil, err
		}
		frontDNN, err := vision.NewDNNDetector(cfg.FrontModelDir)
		if err != nil {
			return nil, nil, nil, err
		}
		defectDNN, err := vision.NewDNNDetector(cfg.DefectModelDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return topDNN, frontDNN, defectDNN, nil
	}

	cx := float64(p.TopWidthPx) / 2.0
	cy := float64(p.TopHeightPx) / 2.0
	topSim := vision.NewScriptedDetector("top-sim", []models.Detection{
		{Class: "attachment", Score: 0.97, Phi: 0.6, Box: models.BoundingBox{X: cx + 300, Y: cy - 80, Width: 160, Height: 160}},
		{Class: "attachment", Score: 0.93, Phi: 2.2, Box: models.BoundingBox{X: cx - 420, Y: cy - 260, Width: 160, Height: 160}},
		{Class: "attachment", Score: 0.91, Phi: -1.4, Box: models.BoundingBox{X: cx - 60, Y: cy + 340, Width: 160, Height: 160}},
	})
	fc := float64(p.CropSizePx) / 2.0
	frontSim := vision.NewScriptedDetector("front-sim", []models.Detection{
		{Class: "attachment", Score: 0.88, Box: models.BoundingBox{X: fc - 120, Y: fc - 120, Width: 240, Height: 240}},
	})
	defectSim := vision.NewScriptedDetector("defect-sim")
	return topSim, frontSim, defectSim, nil
}
