package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"gplan/common/logger"
	"gplan/common/utils/sys"
	"gplan/config"
	"gplan/device"
	"gplan/planner"
	"gplan/report"
)

func newPlanner(profilePath, zonesPath string) (*planner.Planner, *config.MachineProfile, error) {
	prof, err := config.LoadMachineProfile(profilePath)
	if err != nil {
		return nil, nil, err
	}
	lim, err := prof.Limits()
	if err != nil {
		return nil, nil, err
	}
	pl, err := planner.NewPlanner(lim)
	if err != nil {
		return nil, nil, err
	}
	prof.ApplyFilterSettings(pl.Filter())
	if zonesPath != "" {
		store := &config.ZoneStore{Path: zonesPath}
		if err := store.Load(pl.Filter()); err != nil {
			return nil, nil, err
		}
	}
	return pl, prof, nil
}

func runOptimize(cmd *cli.Command) error {
	pl, _, err := newPlanner(cmd.String("profile"), cmd.String("zones"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(cmd.String("input"))
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")

	out, err := pl.OptimizeGCode(lines)
	if err != nil {
		return err
	}

	output := strings.Join(out, "\n") + "\n"
	if path := cmd.String("output"); path != "" {
		return os.WriteFile(path, []byte(output), 0o644)
	}
	fmt.Print(output)
	return nil
}

// stdin carries load samples, one number per line, from whatever sensor
// bridge the operator has attached.
func sampleReader(ctx context.Context) <-chan float64 {
	samples := make(chan float64)
	go func() {
		defer sys.CatchPanic()
		defer close(samples)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			v, err := strconv.ParseFloat(strings.TrimSpace(scanner.Text()), 64)
			if err != nil {
				logger.Warnf("ignoring non-numeric load sample %q", scanner.Text())
				continue
			}
			select {
			case samples <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return samples
}

func runSweep(ctx context.Context, cmd *cli.Command) error {
	pl, _, err := newPlanner(cmd.String("profile"), cmd.String("zones"))
	if err != nil {
		return err
	}
	axis, err := planner.ParseAxis(cmd.String("axis"))
	if err != nil {
		return err
	}

	dev, err := device.Open(cmd.String("port"), int(cmd.Int("baud")))
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Errorf("closing device: %v", err)
		}
	}()

	sweep, err := planner.NewCalibrationSweep(planner.SweepConfig{
		Axis:      axis,
		StartFeed: cmd.Float64("start-feed"),
		EndFeed:   cmd.Float64("end-feed"),
		StepFeed:  cmd.Float64("step-feed"),
	}, pl.Filter())
	if err != nil {
		return err
	}
	sweep.OnProgress = func(step, total int) {
		logger.Infof("sweep %s: step %d/%d", sweep.ID, step, total)
	}

	zones, err := sweep.Run(ctx, dev, sampleReader(ctx))
	if err != nil {
		return err
	}
	if sweep.State() == planner.SweepAborted {
		logger.Warnf("sweep aborted, no zones recorded")
		return nil
	}

	pl.Filter().ReplaceZones(axis, zones)
	if zonesPath := cmd.String("zones"); zonesPath != "" {
		store := &config.ZoneStore{Path: zonesPath}
		if err := store.Save(pl.Filter()); err != nil {
			return err
		}
	}

	text, err := report.RenderSweep(sweep.ID, axis, zones, pl.Filter())
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

func runCheck(cmd *cli.Command) error {
	prof, err := config.LoadMachineProfile(cmd.String("profile"))
	if err != nil {
		return err
	}
	lim, err := prof.Limits()
	if err != nil {
		return err
	}
	for i, ax := range lim.Axes {
		fmt.Printf("%s: vmax=%.1fmm/s amax=%.0fmm/s^2 jmax=%.0fmm/s^3 %.0f steps/mm x%.0f\n",
			planner.Axis(i), ax.MaxVelocity, ax.MaxAccel, ax.MaxJerk, ax.StepsPerMM, ax.Microsteps)
	}
	fmt.Printf("corner deviation %.4fmm, junction floor %.2fmm/s\n",
		lim.CornerDeviation, lim.MinJunctionSpeed)
	return nil
}

func main() {
	profileFlag := &cli.StringFlag{
		Name:  "profile",
		Usage: "Path to the TOML machine profile",
		Value: "machine.toml",
	}
	zonesFlag := &cli.StringFlag{
		Name:  "zones",
		Usage: "Path to the YAML resonance zone store",
		Value: "zones.yaml",
	}

	app := &cli.Command{
		Name:  "gplan",
		Usage: "Jerk-limited motion planner and resonance calibration tool",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"},
			&cli.StringFlag{Name: "log-file", Usage: "Also log to a rotating file"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			level := logger.InfoLevel
			if cmd.Bool("debug") {
				level = logger.DebugLevel
			}
			logger.Init(logger.Config{
				Level:      level,
				Filename:   cmd.String("log-file"),
				Color:      true,
				MaxSizeMB:  10,
				MaxBackups: 3,
				MaxAgeDays: 14,
			})
			logger.Debugf("main goroutine %d", sys.GetGID())
			return ctx, nil
		},
		Commands: []*cli.Command{
			{
				Name:  "optimize",
				Usage: "Re-plan a G-code file and re-emit it with revised feed rates",
				Flags: []cli.Flag{
					profileFlag,
					zonesFlag,
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "G-code file to optimize", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write result here instead of stdout"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runOptimize(cmd)
				},
			},
			{
				Name:  "sweep",
				Usage: "Run a resonance calibration sweep against a serial controller",
				Flags: []cli.Flag{
					profileFlag,
					zonesFlag,
					&cli.StringFlag{Name: "port", Usage: "Serial port of the motion controller", Required: true},
					&cli.IntFlag{Name: "baud", Usage: "Serial baud rate", Value: 115200},
					&cli.StringFlag{Name: "axis", Usage: "Axis to sweep (x, y or z)", Value: "x"},
					&cli.Float64Flag{Name: "start-feed", Usage: "Sweep start feed in mm/min", Value: 300},
					&cli.Float64Flag{Name: "end-feed", Usage: "Sweep end feed in mm/min", Value: 3000},
					&cli.Float64Flag{Name: "step-feed", Usage: "Feed increment per step in mm/min", Value: 50},
				},
				Action: runSweep,
			},
			{
				Name:  "check",
				Usage: "Validate a machine profile and print the derived limits",
				Flags: []cli.Flag{profileFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runCheck(cmd)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Sync()

	if err := app.Run(ctx, os.Args); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}
