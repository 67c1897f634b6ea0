package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mhpenta/mathchat"
)

const solveLongDesc string = `Solve one problem and write the solution image to a file.

Examples:
  mathchat solve "Solve for x: 2x + 3 = 11"
  mathchat solve --image homework.jpg
  mathchat solve --image graph.png --out answer.png "Find the slope"`

type solveCommander struct {
	root      *rootFlags
	imagePath string
	outPath   string
}

func newSolveCmd(root *rootFlags) *cobra.Command {
	cmder := &solveCommander{root: root}

	cmd := &cobra.Command{
		Use:   "solve [problem text]",
		Short: "Solve a single problem from the command line",
		Long:  solveLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVarP(&cmder.imagePath, "image", "i", "", "Path to a PNG, JPEG or WebP image of the problem")
	cmd.Flags().StringVarP(&cmder.outPath, "out", "o", "solution.png", "Where to write the solution image")

	return cmd
}

func (c *solveCommander) run(cmd *cobra.Command, text string) error {
	cfg, err := c.root.load(cmd, nil)
	if err != nil {
		return err
	}

	log := newLogger(cfg)
	defer log.Sync()

	turn := mathchat.Turn{Text: text}
	if c.imagePath != "" {
		img, err := readImage(c.imagePath)
		if err != nil {
			return err
		}
		turn.Image = img
	}

	ctx := cmd.Context()
	gw, err := newGateway(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer gw.Close()

	store := mathchat.NewStore(gw, mathchat.WithStoreLogger(log.Named("store")))
	reply, err := solveOnce(ctx, store, turn)
	if err != nil {
		return err
	}

	data, _, err := reply.ImageData()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.outPath, data, 0o644); err != nil {
		return fmt.Errorf("writing solution: %w", err)
	}

	log.Info("solution saved", zap.String("path", c.outPath), zap.Int("bytes", len(data)))
	fmt.Fprintln(cmd.OutOrStdout(), c.outPath)
	return nil
}

// solveOnce dispatches a single turn and waits for the model message.
// A failed generation is returned as an error carrying the chat text.
func solveOnce(ctx context.Context, store *mathchat.Store, turn mathchat.Turn) (mathchat.Message, error) {
	_, done, err := store.Dispatch(ctx, turn)
	if err != nil {
		if errors.Is(err, mathchat.ErrEmptyTurn) {
			return mathchat.Message{}, errors.New("give a problem as text, with --image, or both")
		}
		return mathchat.Message{}, err
	}

	var reply mathchat.Message
	select {
	case reply = <-done:
	case <-ctx.Done():
		return mathchat.Message{}, ctx.Err()
	}

	if reply.IsError() {
		return reply, errors.New(strings.TrimPrefix(reply.Content, mathchat.ErrorPrefix))
	}
	return reply, nil
}

func readImage(path string) (*mathchat.InputImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	detected := mimetype.Detect(data)
	img := &mathchat.InputImage{Data: data, MIMEType: detected.String()}
	if err := mathchat.ValidateInputImage(*img); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}
