package forgectl

import (
	"fmt"
	"os"
	"sort"
	"time"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"forged/pkg/types"
)

const defaultAddr = "http://localhost:8001"

// Run executes the CLI and returns a process exit code.
func Run(args []string) int {
	root := buildRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func buildRootCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)

	envAddr := os.Getenv("FORGED_ADDR")
	if envAddr == "" {
		envAddr = defaultAddr
	}

	root := &cobra.Command{
		Use:           "forgectl",
		Short:         "Client for the forged generation daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", envAddr, "Daemon base URL (defaults FORGED_ADDR)")
	// Generations run for minutes; the default must cover a cold model load too.
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Request timeout")

	client := func() *Client { return NewClient(addr, timeout) }

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status: slots, counters and VRAM",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client().Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd, st)
			return nil
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the managed models",
		RunE: func(cmd *cobra.Command, args []string) error {
			models, err := client().Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				cmd.Printf("%-8s %-14s vram=%s script=%s\n",
					m.Workload, m.Name, units.BytesSize(float64(m.RequiredVRAMBytes)), m.Script)
			}
			return nil
		},
	}

	var (
		width  int
		height int
		steps  int
	)
	imageCmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate an image from a text prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().GenerateImage(cmd.Context(), types.GenerateImageRequest{
				Prompt: args[0],
				Width:  width,
				Height: height,
				Steps:  steps,
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	imageCmd.Flags().IntVar(&width, "width", 0, "Image width (512..2048, default 1024)")
	imageCmd.Flags().IntVar(&height, "height", 0, "Image height (512..2048, default 1024)")
	imageCmd.Flags().IntVar(&steps, "steps", 0, "Diffusion steps (10..100, default 25)")

	meshCmd := &cobra.Command{
		Use:   "mesh <image-file>",
		Short: "Reconstruct a 3D mesh from an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().GenerateMesh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}

	var fullSteps int
	fullCmd := &cobra.Command{
		Use:   "full <prompt>",
		Short: "Run the full text-to-3D pipeline (image then mesh)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client().GenerateFull(cmd.Context(), types.GeneratePipelineRequest{
				Prompt: args[0],
				Steps:  fullSteps,
			})
			if err != nil {
				return err
			}
			cmd.Printf("job      %s\n", res.JobID)
			cmd.Printf("image    %s\n", res.ImagePath)
			cmd.Printf("mesh     %s\n", res.MeshPath)
			cmd.Printf("total    %s\n", time.Duration(res.TotalMS)*time.Millisecond)
			return nil
		},
	}
	fullCmd.Flags().IntVar(&fullSteps, "steps", 0, "Diffusion steps for the image stage")

	var outFile string
	downloadCmd := &cobra.Command{
		Use:   "download <job-id> <filename>",
		Short: "Download one generated artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := client().Download(cmd.Context(), args[0], args[1], outFile)
			if err != nil {
				return err
			}
			cmd.Printf("saved %s\n", dest)
			return nil
		},
	}
	downloadCmd.Flags().StringVarP(&outFile, "output", "o", "", "Destination file (defaults to the remote name)")

	root.AddCommand(statusCmd, modelsCmd, imageCmd, meshCmd, fullCmd, downloadCmd)
	return root
}

func printResult(cmd *cobra.Command, res types.GenerateResponse) {
	cmd.Printf("job      %s\n", res.JobID)
	cmd.Printf("path     %s\n", res.Path)
	cmd.Printf("size     %s\n", units.BytesSize(float64(res.FileSizeBytes)))
	cmd.Printf("elapsed  %s\n", time.Duration(res.GenerationMS)*time.Millisecond)
}

func printStatus(cmd *cobra.Command, st types.StatusResponse) {
	names := make([]string, 0, len(st.Models))
	for name := range st.Models {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ms := st.Models[name]
		cmd.Printf("%-8s %-10s loads=%d\n", name, ms.State, ms.LoadCount)
	}
	cmd.Printf("generations %d (avg %dms)\n", st.GenerationCount, st.AvgGenerationMS)
	cmd.Printf("loads %d, evictions %d\n", st.LoadsTotal, st.EvictionsTotal)
	if st.VRAM.Available {
		cmd.Printf("vram %s free of %s (%s)\n",
			units.BytesSize(float64(st.VRAM.FreeBytes)),
			units.BytesSize(float64(st.VRAM.TotalBytes)),
			st.VRAM.DeviceName)
	} else {
		cmd.Printf("vram unavailable: %s\n", st.VRAM.Error)
	}
	if st.NeedsRestart {
		cmd.Println("restart recommended: generation threshold reached")
	}
	cmd.Printf("uptime %s\n", time.Duration(st.UptimeSeconds)*time.Second)
}
