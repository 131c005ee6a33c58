package gpu

import (
	"fmt"

	"github.com/skobkin/benchmarco/internal/telemetry"
)

// Extract returns the space-delimited token whose right edge sits offset
// bytes before the end of line. The left edge is found by scanning backwards
// to the nearest space, so variable-width values ("87", "100") come out of
// the same column. The token is empty when the byte just before the right
// edge is a space.
func Extract(line []byte, offset int) ([]byte, error) {
	if offset < 0 || offset > len(line) {
		return nil, telemetry.NewError(telemetry.ErrMalformedLine, "",
			fmt.Errorf("offset %d outside line of length %d", offset, len(line)))
	}

	end := len(line) - offset
	for i := end - 1; i >= 0; i-- {
		if line[i] == ' ' {
			return line[i+1 : end], nil
		}
	}

	return nil, telemetry.NewError(telemetry.ErrMalformedLine, "",
		fmt.Errorf("no field delimiter before column %d", end))
}
