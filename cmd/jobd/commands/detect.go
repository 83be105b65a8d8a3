package commands

import (
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/internal/util"
)

// DetectCmd runs object detection synchronously
var DetectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Detect objects in an image",
	Long: `Run the detect-objects heuristic on an image and print the boxes.

By default the image is sent to the server's /detect/objects endpoint.
With --local the detector runs in this process using the detect.* settings.

Examples:
  jobd detect photo.png
  jobd detect photo.jpg --local --min-score 0.6
  jobd detect photo.png --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDetect,
}

func init() {
	DetectCmd.Flags().Bool("local", false, "Run the detector in-process instead of calling the server")
	DetectCmd.Flags().Float64("min-score", 0, "Minimum detection score (default: detect.min_score)")
	DetectCmd.Flags().Bool("json", false, "Print the raw response as JSON")
}

func runDetect(cmd *cobra.Command, args []string) error {
	local, _ := cmd.Flags().GetBool("local")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	image, err := readImage(args[0])
	if err != nil {
		return err
	}
	req := detect.Request{ImageBase64: image}
	if cmd.Flags().Changed("min-score") {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		req.MinScore = util.Ptr(minScore)
	}

	var resp *detect.Response
	if local {
		cfg, err := am.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		detector := detect.NewDetector(detect.Config{
			MinScore:      cfg.Detect.MinScore,
			EdgeThreshold: cfg.Detect.EdgeThreshold,
			ModelVersion:  cfg.Detect.ModelVersion,
		})
		out, err := detector.Detect(cmd.Context(), req)
		if err != nil {
			return err
		}
		resp = &out
	} else {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		resp, err = c.Detect(cmd.Context(), req)
		if err != nil {
			return describeAPIError(err)
		}
	}

	if jsonOutput {
		return printJSON(resp)
	}

	if len(resp.Objects) == 0 {
		pterm.Info.Printf("No objects found (%s, %.2fms)\n", resp.ModelVersion, resp.LatencyMs)
		return nil
	}
	pterm.Success.Printf("Found %s object(s) in %.2fms\n", pterm.Green(fmt.Sprintf("%d", len(resp.Objects))), resp.LatencyMs)
	for _, obj := range resp.Objects {
		pterm.Printf("  %s %s at (%.0f, %.0f) %.0fx%.0f score %s\n",
			pterm.Gray("→"),
			pterm.LightGreen(obj.Label),
			obj.X, obj.Y, obj.Width, obj.Height,
			pterm.Yellow(fmt.Sprintf("%.2f", obj.Score)))
	}
	pterm.Printf("%s %s\n", pterm.Gray("Model:"), resp.ModelVersion)
	return nil
}

// imageDataURL wraps raw image bytes as a base64 data URL
func imageDataURL(data []byte) string {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data)
}
