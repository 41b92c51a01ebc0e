package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/vision"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one access check against a lab",
	Long: `Run the access pipeline on one image as if it came from the lab's door camera.
The decision is recorded in the audit trail like any other scan.

Examples:
  # Scan a JPEG at lab 1
  lab-access scan --lab 1 --image door.jpg

  # Scan a raw BGR buffer captured from a camera
  lab-access scan --lab 1 --image frame.raw --width 640 --height 480 --order bgr`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Int64("lab", 0, "Lab ID to scan at (required)")
	scanCmd.Flags().String("image", "", "Encoded image or raw pixel file (required)")
	scanCmd.Flags().String("order", "rgb", "Channel order of raw pixels: rgb, bgr or gray")
	scanCmd.Flags().Int("width", 0, "Width of raw pixels (raw input only)")
	scanCmd.Flags().Int("height", 0, "Height of raw pixels (raw input only)")
	_ = scanCmd.MarkFlagRequired("lab")
	_ = scanCmd.MarkFlagRequired("image")
}

// readFrameFile loads an encoded image, or raw pixels when width and height are set.
func readFrameFile(path, order string, width, height int) (*vision.Frame, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is given by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if width == 0 && height == 0 {
		return vision.DecodeFrame(data)
	}
	o, err := vision.ParseColorOrder(order)
	if err != nil {
		return nil, err
	}
	return vision.NewFrame(width, height, o, data)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	frame, err := readFrameFile(mustGetString(cmd, "image"), mustGetString(cmd, "order"),
		mustGetInt(cmd, "width"), mustGetInt(cmd, "height"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.svc.Scan(ctx, mustGetInt64(cmd, "lab"), frame)
	if err != nil {
		return err
	}

	status := "DENIED"
	if d.Granted {
		status = "GRANTED"
	}
	fmt.Printf("%s: %s\n", status, d.Message)
	fmt.Printf("  Reason:   %s\n", d.Reason)
	if d.MemberID != nil {
		fmt.Printf("  Member:   %d (%s)\n", *d.MemberID, d.DisplayName)
	}
	if d.Distance != nil {
		fmt.Printf("  Distance: %.4f\n", *d.Distance)
	}
	fmt.Printf("  Event:    %s\n", d.EventID)
	return nil
}
