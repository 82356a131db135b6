package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"raid-stats/internal/constants"
	"raid-stats/internal/export"
	"raid-stats/internal/stream"

	"github.com/spf13/cobra"
)

func newPackCmd() *cobra.Command {
	var keyHex string
	cmd := &cobra.Command{
		Use:   "pack <plain-file> <export-file>",
		Short: "Compress and obfuscate a rows or JSON file into an export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(keyHex)
			if err != nil {
				return err
			}

			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer in.Close()

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			if err := export.Pack(out, key, in); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			log.Info().Str("input", args[0]).Str("output", args[1]).Str("key", hex.EncodeToString(key[:])).Msg("export packed")
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHex, "key", "", "Obfuscation key as 32 hex digits (random when empty)")
	return cmd
}

func parseKey(s string) ([stream.KeySize]byte, error) {
	var key [stream.KeySize]byte
	if s == "" {
		_, err := rand.Read(key[:])
		return key, err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("invalid key: %w", err)
	}
	if len(b) != stream.KeySize {
		return key, fmt.Errorf("invalid key: want %d bytes, got %d", stream.KeySize, len(b))
	}
	copy(key[:], b)
	return key, nil
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <export-file> <container-file>",
		Short: "Strip the obfuscation of an export, leaving the xz container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openSource(args[0])
			if err != nil {
				return err
			}
			dec := stream.NewDecoder(cmd.Context(), src)
			defer dec.Close()

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			n, err := io.Copy(out, dec)
			if err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to write output: %w", err)
			}

			log.Info().Str("output", args[1]).Int64("bytes", n).Uint64("ciphertext_bytes", dec.Offset()).Msg("export decoded")
			return nil
		},
	}
}

func openSource(path string) (stream.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	return stream.NewReaderSource(f, constants.StreamChunkSize), nil
}
