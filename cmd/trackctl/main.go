// Command trackctl cleans a local FIT or GPX recording and prints its
// derived summary, power curve and heatmap as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"example.com/verve/internal/domain"
	"example.com/verve/internal/engine"
	"example.com/verve/internal/export"
	"example.com/verve/internal/heatmap"
	"example.com/verve/internal/ingest"
	"example.com/verve/internal/persistence/memory"
	"example.com/verve/internal/powercurve"
	"example.com/verve/internal/track"
)

const localUser = "local"

type report struct {
	File       string               `json:"file"`
	Points     int                  `json:"points"`
	Removed    int                  `json:"removed"`
	Skipped    []track.SkippedPoint `json:"skipped"`
	DistanceM  *float64             `json:"distance_m"`
	DurationS  float64              `json:"duration_s"`
	MovingS    *float64             `json:"moving_s"`
	GainM      *float64             `json:"elevation_gain_m"`
	LossM      *float64             `json:"elevation_loss_m"`
	AvgSpeed   *float64             `json:"avg_speed_mps"`
	MaxSpeed   *float64             `json:"max_speed_mps"`
	AvgPower   *float64             `json:"avg_power_w"`
	MaxPower   *float64             `json:"max_power_w"`
	PowerCurve []powercurve.Curve   `json:"power_curve"`
	Heatmap    []heatmap.Cell       `json:"heatmap,omitempty"`
	Parquet    string               `json:"parquet,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "trackctl failed: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	defaults := track.DefaultOptions()
	fs := flag.NewFlagSet("trackctl", flag.ContinueOnError)
	var (
		file        = fs.String("file", "", "Path to a .fit or .gpx recording")
		minDistance = fs.Float64("min-distance", defaults.MinDistance, "Noise threshold in metres")
		duplicates  = fs.String("duplicates", string(defaults.Duplicates), "Duplicate timestamp policy: keep_first|reject")
		reference   = fs.String("reference", string(defaults.Reference), "Noise reference: survivor|original")
		top         = fs.Int("top", powercurve.DefaultTopK, "Windows kept per power-curve duration")
		cellSize    = fs.Float64("cell-size", 0, "Heatmap cell size in metres; 0 skips the heatmap")
		parquetOut  = fs.String("parquet", "", "Write the cleaned track to this Parquet file")
	)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s --file ride.fit [--min-distance 1] [--cell-size 50] [--parquet out.parquet]\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*file) == "" {
		fs.Usage()
		return fmt.Errorf("--file is required")
	}

	f, err := os.Open(*file)
	if err != nil {
		return fmt.Errorf("open %s: %w", *file, err)
	}
	points, err := ingest.DecodeFile(*file, f)
	f.Close()
	if err != nil {
		return err
	}

	cfg := engine.DefaultConfig()
	cfg.Track.MinDistance = *minDistance
	cfg.Track.Duplicates = track.DuplicatePolicy(*duplicates)
	cfg.Track.Reference = track.NoiseReference(*reference)
	cfg.PowerCurveTopK = *top
	if err := cfg.Track.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	store := memory.NewStore()
	activity, err := store.PutActivity(ctx, domain.Activity{UserID: localUser, Name: filepath.Base(*file)}, points)
	if err != nil {
		return err
	}
	svc := engine.NewService(store, store, cfg, engine.WithLogger(log.New(io.Discard, "", 0)))

	cleaned, err := svc.CleanAndDeriveTrack(ctx, localUser, activity.ID)
	if err != nil {
		return err
	}
	curves, err := svc.ComputePowerCurve(ctx, localUser, activity.ID, nil, 0)
	if err != nil {
		return err
	}

	summary := cleaned.Activity
	out := report{
		File:       *file,
		Points:     len(cleaned.Points),
		Removed:    cleaned.Removed,
		Skipped:    cleaned.Skipped,
		DistanceM:  summary.Distance,
		DurationS:  summary.Duration.Seconds(),
		GainM:      summary.ElevationGain,
		LossM:      summary.ElevationLoss,
		AvgSpeed:   summary.AvgSpeed,
		MaxSpeed:   summary.MaxSpeed,
		AvgPower:   summary.AvgPower,
		MaxPower:   summary.MaxPower,
		PowerCurve: curves,
	}
	if summary.MovingDuration != nil {
		out.MovingS = domain.Float(summary.MovingDuration.Seconds())
	}
	if *cellSize > 0 {
		out.Heatmap, err = svc.ComputeHeatmap(ctx, localUser, engine.HeatmapQuery{ActivityIDs: []string{activity.ID}, CellSize: *cellSize})
		if err != nil {
			return err
		}
	}
	if *parquetOut != "" {
		data, err := export.TrackParquet(cleaned.Points)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*parquetOut, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", *parquetOut, err)
		}
		out.Parquet = *parquetOut
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
