package export

import (
	"fmt"
	"io"

	"raid-stats/internal/domain"
	"raid-stats/internal/stream"

	"github.com/ulikunitz/xz"
)

// Pack compresses r into an xz container and writes it obfuscated with key,
// producing the byte stream served by the export endpoint.
func Pack(w io.Writer, key [stream.KeySize]byte, r io.Reader) error {
	enc := stream.NewEncoder(w, key)
	zw, err := xz.NewWriter(enc)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := io.Copy(zw, r); err != nil {
		return fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	return enc.Close()
}

// FormatRow renders a row the way the export encodes it.
func FormatRow(w io.Writer, r domain.RawRow) error {
	_, err := fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\n", r.X, r.Y, r.Z, r.W, r.DifficultyIndex)
	return err
}
