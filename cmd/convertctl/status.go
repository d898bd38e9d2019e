package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docmill/convertd/pkg/client"
)

var statusWait bool

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the status of a conversion job",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusWait, "wait", false, "poll until the job reaches a terminal state")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := client.New(serverURL)
	ctx := context.Background()

	var (
		status *client.Status
		err    error
	)
	if statusWait {
		status, err = c.Poll(ctx, args[0])
	} else {
		status, err = c.GetStatus(ctx, args[0])
	}
	if errors.Is(err, client.ErrNotFound) {
		return fmt.Errorf("no job with id %s", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("Job: %s\n", status.JobID)
	printStatus(status)
	return nil
}
