// Command bench runs the joint-command bridge against either a simulated
// robot or the serial bench rig, driving the control cycle from a wall-clock
// ticker instead of a host-provided realtime thread. It is the development
// stand-in for running inside the robot's control runtime.
package main

import (
	"context"
	"flag"
	"log"
	"math"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rdeits/valkyrie-translator/internal/blackbox"
	"github.com/rdeits/valkyrie-translator/internal/bridge"
	"github.com/rdeits/valkyrie-translator/internal/command"
	"github.com/rdeits/valkyrie-translator/internal/config"
	"github.com/rdeits/valkyrie-translator/internal/hw"
	"github.com/rdeits/valkyrie-translator/internal/hw/serialhw"
	"github.com/rdeits/valkyrie-translator/internal/monitor"
	"github.com/rdeits/valkyrie-translator/internal/telemetry"
)

var (
	configPath = flag.String("config", "", "Bridge config JSON file (empty for defaults)")
	listen     = flag.String("listen", ":8080", "Debug HTTP listen address")
	serialPath = flag.String("serial", "", "Serial device for the bench rig (empty runs the simulated robot)")
	robotName  = flag.String("robot", "valkyrie", "Robot name tag for telemetry")
	period     = flag.Duration("period", 2*time.Millisecond, "Control cycle period")
)

// Joint set of the simulated robot.
var simEffortJoints = []string{
	"leftHipPitch", "leftKneePitch", "leftAnklePitch",
	"rightHipPitch", "rightKneePitch", "rightAnklePitch",
}

var simPositionJoints = []string{"lowerNeckPitch", "neckYaw"}

// buildSimRobot assembles a mock robot and starts a crude plant model: each
// effort joint integrates its commanded effort as acceleration with damping,
// so slewed and ramped outputs are observable end to end.
func buildSimRobot(ctx context.Context, wg *sync.WaitGroup) *hw.MockRobot {
	robot := hw.NewMockRobot()

	joints := make([]*hw.MockJoint, 0, len(simEffortJoints))
	for _, name := range simEffortJoints {
		joints = append(joints, robot.AddEffortJoint(name))
	}
	for _, name := range simPositionJoints {
		robot.AddPositionJoint(name)
	}
	robot.AddIMU("pelvisMiddleImu")
	robot.AddForceTorque("leftAnkleAth")
	robot.AddForceTorque("rightAnkleAth")

	wg.Add(1)
	go func() {
		defer wg.Done()
		const dt = 0.002
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()

		q := make([]float64, len(joints))
		qd := make([]float64, len(joints))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for i, j := range joints {
					u, _ := j.Written()
					qd[i] += (u - 2.0*qd[i]) * dt
					q[i] += qd[i] * dt
					q[i] = math.Max(-math.Pi, math.Min(math.Pi, q[i]))
					j.SetMeasured(q[i], qd[i], u)
				}
			}
		}
	}()

	return robot
}

func main() {
	flag.Parse()

	cfg := config.EmptyBridgeConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadBridgeConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var robot hw.RobotHW
	var rig *serialhw.Rig
	if *serialPath != "" {
		var err error
		rig, err = serialhw.Open(*serialPath, serialhw.DefaultPortMode(), serialhw.Manifest{
			EffortJoints:   simEffortJoints,
			PositionJoints: simPositionJoints,
			IMUs:           []string{"pelvisMiddleImu"},
			ForceTorques:   []string{"leftAnkleAth", "rightAnkleAth"},
		})
		if err != nil {
			log.Fatalf("failed to open bench rig: %v", err)
		}
		defer rig.Close()
		robot = rig

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rig.Monitor(ctx); err != nil && err != context.Canceled {
				log.Printf("failed to monitor bench rig: %v", err)
			}
			log.Print("rig monitor routine terminated")
		}()
	} else {
		robot = buildSimRobot(ctx, &wg)
	}

	receiver, err := command.NewReceiver(cfg.GetCommandListen())
	if err != nil {
		log.Fatalf("failed to bind command listener: %v", err)
	}
	defer receiver.Close()
	log.Printf("command listener on %s", receiver.LocalAddr())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receiver.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("failed to monitor command socket: %v", err)
		}
		log.Print("command monitor routine terminated")
	}()

	publisher, err := telemetry.NewUDPPublisher(cfg.GetTelemetryTarget())
	if err != nil {
		log.Fatalf("failed to dial telemetry target: %v", err)
	}
	defer publisher.Close()

	var recorder *blackbox.Recorder
	if path := cfg.GetBlackboxPath(); path != "" {
		recorder, err = blackbox.Open(path)
		if err != nil {
			log.Fatalf("failed to open blackbox: %v", err)
		}
		defer recorder.Close()
	}

	stats := monitor.NewCycleStats(*period, 4096)

	b, err := bridge.New(bridge.Options{
		HW:        robot,
		Config:    cfg,
		RobotName: *robotName,
		Publisher: publisher,
		Receiver:  receiver,
		Recorder:  recorder,
		Stats:     stats,
	})
	if err != nil {
		log.Fatalf("failed to build bridge: %v", err)
	}
	if err := b.Init(); err != nil {
		log.Fatalf("failed to initialize bridge: %v", err)
	}
	log.Printf("bridge activation %s: %s", b.ActivationID, b.ClaimSummary())

	// Control tick goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := b.Start(time.Now()); err != nil {
			log.Fatalf("failed to start bridge: %v", err)
		}
		ticker := time.NewTicker(*period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				if err := b.Stop(time.Now()); err != nil {
					log.Printf("bridge stop: %v", err)
				}
				log.Print("control tick routine terminated")
				return
			case t := <-ticker.C:
				if err := b.Update(t); err != nil {
					log.Printf("bridge update: %v", err)
				}
			}
		}
	}()

	// Debug HTTP server goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		b.AttachAdminRoutes(mux)
		stats.AttachAdminRoutes(mux)
		if recorder != nil {
			recorder.AttachAdminRoutes(mux)
		}

		server := &http.Server{Addr: *listen, Handler: mux}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start debug server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down debug server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("debug server shutdown error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
