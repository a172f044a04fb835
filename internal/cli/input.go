package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// readInput returns the contents of path, or of stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read stdin", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("input file not found: %s", path))
		}
		return nil, WrapExitError(ExitCommandError, "failed to read input", err)
	}
	return data, nil
}

// decodeList accepts either a JSON array of T or a single T object.
// Unknown fields are rejected.
func decodeList[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	if trimmed[0] != '[' {
		var one T
		if err := dec.Decode(&one); err != nil {
			return nil, err
		}
		return []T{one}, nil
	}

	var list []T
	if err := dec.Decode(&list); err != nil {
		return nil, err
	}
	return list, nil
}

// commandContext returns the command's context, canceled on SIGINT or
// SIGTERM. The returned stop function releases the signal handler.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
