package track

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/selfdriving-car-go/pkg/config"
	"github.com/mpapenbr/selfdriving-car-go/pkg/simulation"
	"github.com/mpapenbr/selfdriving-car-go/pkg/track"
)

func NewTrackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track",
		Short: "commands for track layouts",
	}
	cmd.AddCommand(newCheckCmd())
	return cmd
}

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "loads a track and prints walls, checkpoints and the start reading",
		RunE: func(cmd *cobra.Command, args []string) error {
			geo, err := track.LoadFile(config.TrackFile, track.WithRounding(config.RoundTrack))
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), geo)
		},
	}
	cmd.Flags().StringVarP(&config.TrackFile,
		"track", "t",
		"",
		"track layout file (text or yaml)")
	cmd.Flags().BoolVar(&config.RoundTrack,
		"round-track",
		true,
		"round track coordinates to integers")
	return cmd
}

func printSummary(w io.Writer, geo *track.Geometry) error {
	sim, err := simulation.New(geo)
	if err != nil {
		return err
	}
	minPt, maxPt := geo.Bounds()
	cps := sim.Checkpoints()
	fmt.Fprintf(w, "track:       %s\n", geo.Name())
	fmt.Fprintf(w, "walls:       %d\n", geo.Len())
	fmt.Fprintf(w, "bounds:      %s - %s\n", minPt, maxPt)
	fmt.Fprintf(w, "checkpoints: %d\n", cps.Len())
	fmt.Fprintf(w, "length:      %.2f\n", cps.Length())
	for i, cp := range cps.Checkpoints() {
		fmt.Fprintf(w, "  %3d %-16s dist %8.2f acc %8.2f reward %.4f\n",
			i, cp.Position, cp.DistanceToPrevious, cp.AccumulatedDistance, cp.RewardValue)
	}
	snap := sim.Snapshot()
	fmt.Fprintf(w, "start:       %s heading %.0f\n", snap.Position, snap.Heading)
	fmt.Fprintf(w, "reading:     %v\n", []float64(snap.Reading))
	if sim.IsCollision(snap.Reading) {
		fmt.Fprintln(w, "warning:     vehicle touches a wall in its start position")
	}
	return nil
}
