package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/docmill/convertd/pkg/client"
)

var (
	submitContentType  string
	submitPollInterval time.Duration
	submitPollCeiling  time.Duration
	submitNoWait       bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Submit a file for conversion",
	Long: `Submit a PDF or image for conversion. By default waits for the result,
polling the server until the job reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitContentType, "content-type", "", "MIME type of the file (default: inferred from extension)")
	submitCmd.Flags().DurationVar(&submitPollInterval, "poll-interval", client.DefaultPollInterval, "status poll interval")
	submitCmd.Flags().DurationVar(&submitPollCeiling, "poll-ceiling", client.DefaultPollCeiling, "give up polling after this long")
	submitCmd.Flags().BoolVar(&submitNoWait, "no-wait", false, "submit and print the job id without waiting for the result")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	path := args[0]

	contentType := submitContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
		if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
			contentType = contentType[:idx]
		}
	}
	if contentType == "" {
		return fmt.Errorf("could not infer content type for %s, pass --content-type", path)
	}

	c := client.New(serverURL,
		client.WithPollInterval(submitPollInterval),
		client.WithPollCeiling(submitPollCeiling),
	)

	ctx := context.Background()

	created, err := c.CreateJob(ctx, filepath.Base(path), contentType)
	if err != nil {
		return err
	}
	fmt.Printf("Job created: %s\n", color.CyanString(created.JobID))

	if err := c.Upload(ctx, created.UploadURL, path, contentType); err != nil {
		return err
	}
	fmt.Println("Upload complete")

	if err := c.Begin(ctx, created.JobID); err != nil {
		return err
	}

	if submitNoWait {
		fmt.Printf("Conversion started. Check progress with: convertctl status %s\n", created.JobID)
		return nil
	}

	fmt.Printf("Converting (polling every %s)...\n", submitPollInterval)
	status, err := c.Poll(ctx, created.JobID)
	if errors.Is(err, client.ErrPollTimeout) {
		return fmt.Errorf("still converting after %s, check later with: convertctl status %s", submitPollCeiling, created.JobID)
	}
	if err != nil {
		return err
	}

	printStatus(status)
	if status.Status == "error" {
		return fmt.Errorf("conversion failed")
	}
	return nil
}

func printStatus(s *client.Status) {
	switch s.Status {
	case "success":
		fmt.Printf("Status: %s\n", color.GreenString(s.Status))
	case "error":
		fmt.Printf("Status: %s\n", color.RedString(s.Status))
	default:
		fmt.Printf("Status: %s\n", color.YellowString(s.Status))
	}
	if s.Message != "" {
		fmt.Printf("Message: %s\n", s.Message)
	}
	for kind, url := range s.URLs {
		fmt.Printf("  %-4s %s\n", kind, url)
	}
}
