package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"video2notes/internal/api"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var data string
	var file string
	cmd := &cobra.Command{
		Use:   "resolve <stage>",
		Short: "Answer an open checkpoint",
		Long: "Answer the checkpoint a waiting stage has opened. The payload is JSON, " +
			"for example '{\"slide\":[10,20,640,360]}' or '{\"full_frame\":true}' for " +
			"region selection (optional \"speaker\" and \"subtitle\" rectangles are blanked " +
			"before slides are compared) and '{\"names\":{\"SPEAKER_00\":\"Ada\"}}' for speaker names.",
		Example: "  video2notes resolve extract-slides --data '{\"accepted\":[0,2,3],\"vocabulary\":[\"goroutine\"]}'\n" +
			"  video2notes resolve label-speakers --file speakers.json",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := checkpointPayload(data, file)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Resolve(cmd.Context(), args[0], payload); err != nil {
					return describeAPIError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint for %s resolved\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Checkpoint answer as inline JSON")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the checkpoint answer from a JSON file")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	return cmd
}

func checkpointPayload(data, file string) (json.RawMessage, error) {
	raw := []byte(strings.TrimSpace(data))
	if file != "" {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint answer: %w", err)
		}
		raw = content
	}
	if len(raw) == 0 {
		return nil, errors.New("a checkpoint answer is required (--data or --file)")
	}
	if !json.Valid(raw) {
		return nil, errors.New("checkpoint answer is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
