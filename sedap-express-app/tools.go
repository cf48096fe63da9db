package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/uniity/sedap-express/x/compression"
	"github.com/uniity/sedap-express/x/message"
)

// forEachLine calls fn for every argument, or for every non-empty stdin line
// when there are none.
func forEachLine(cmd *cobra.Command, args []string, fn func(string) error) error {
	if len(args) > 0 {
		for _, a := range args {
			if err := fn(a); err != nil {
				return err
			}
		}
		return nil
	}
	sc := bufio.NewScanner(cmd.InOrStdin())
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func newCompressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compress [record...]",
		Short: "Compress wire records into DEFLATE/base64 tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachLine(cmd, args, func(line string) error {
				token, err := compression.Compress(line)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func newDecompressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decompress [token...]",
		Short: "Expand compressed tokens back into wire records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return forEachLine(cmd, args, func(line string) error {
				record, err := compression.Decompress(line)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), record)
				return nil
			})
		},
	}
}

// decoded is the YAML rendering of one record
type decoded struct {
	Record      string          `yaml:"record"`
	Type        message.Type    `yaml:"type"`
	Message     message.Message `yaml:"message"`
	Diagnostics []string        `yaml:"diagnostics,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [record...]",
		Short: "Decode records or compressed tokens and print fields and diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			dec := message.NewDecoder(zerolog.Nop())
			return forEachLine(cmd, args, func(line string) error {
				return printDecoded(cmd.OutOrStdout(), dec, line)
			})
		},
	}
}

func printDecoded(w io.Writer, dec *message.Decoder, line string) error {
	var (
		m     message.Message
		diags message.Diagnostics
		err   error
	)
	if strings.Contains(line, message.Delimiter) {
		m, diags, err = dec.Decode(line)
	} else {
		m, diags, err = compression.DecompressMessage(line, dec)
	}
	if err != nil {
		return fmt.Errorf("decode %q: %w", line, err)
	}

	out := decoded{Record: message.Encode(m), Type: m.Type(), Message: m}
	for _, d := range diags {
		out.Diagnostics = append(out.Diagnostics, d.String())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return err
	}
	return enc.Close()
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration after defaults, file, environment and flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	})
	return cmd
}
