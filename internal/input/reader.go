package input

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/models"
)

// ReadCalls loads a recorded-calls document: either a JSON array or the
// NDJSON stream written by the capture proxy.
func ReadCalls(path string, logger *slog.Logger) ([]models.RecordedCall, error) {
	data, err := aggregate.ReadFileSafe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: recorded calls %s: %v", aggregate.ErrInputUnavailable, path, err)
	}

	calls, err := ParseCalls(data, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return calls, nil
}

func ParseCalls(data []byte, logger *slog.Logger) ([]models.RecordedCall, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var calls []models.RecordedCall
		if err := json.Unmarshal(trimmed, &calls); err != nil {
			return nil, fmt.Errorf("%w: recorded calls: %v", aggregate.ErrInputMalformed, err)
		}
		return calls, nil
	}

	calls, err := parseLines(bytes.NewReader(trimmed), logger)
	if err != nil {
		return nil, err
	}

	sortByCapture(calls)
	return calls, nil
}

// sortByCapture restores request order for NDJSON written by the capture
// proxy, which records calls as their responses arrive. Input without a
// timestamp on every call keeps its order.
func sortByCapture(calls []models.RecordedCall) {
	for _, call := range calls {
		if call.Timestamp.IsZero() {
			return
		}
	}

	slices.SortStableFunc(calls, func(a, b models.RecordedCall) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}

// parseLines skips lines that are not valid JSON; an interrupted capture
// can leave a truncated last line behind. Input where no line parses is
// malformed.
func parseLines(r io.Reader, logger *slog.Logger) ([]models.RecordedCall, error) {
	if logger == nil {
		logger = slog.Default()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var calls []models.RecordedCall
	lineNum := 0
	firstBad := 0
	var firstErr error

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		lineNum++

		if len(line) == 0 {
			continue
		}

		var call models.RecordedCall
		if err := json.Unmarshal(line, &call); err != nil {
			if firstErr == nil {
				firstBad, firstErr = lineNum, err
			}
			logger.Warn("skipping invalid JSON object", "line", lineNum, "error", err)
			continue
		}

		calls = append(calls, call)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: recorded calls: %v", aggregate.ErrInputMalformed, err)
	}

	if len(calls) == 0 && firstErr != nil {
		return nil, fmt.Errorf("%w: recorded calls: no valid call, line %d: %v", aggregate.ErrInputMalformed, firstBad, firstErr)
	}

	return calls, nil
}

// DryRun lists the calls that would be turned into scenario steps.
func DryRun(w io.Writer, calls []models.RecordedCall) error {
	for i, call := range calls {
		if _, err := fmt.Fprintf(w, "[DRY RUN] - %d: %s %s\n", i+1, call.Method, call.URL); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "[DRY RUN] - %d calls\n", len(calls))
	return err
}
