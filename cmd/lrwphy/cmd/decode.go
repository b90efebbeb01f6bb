package cmd

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorawan-server/lrwphy/internal/decoder"
	"github.com/lorawan-server/lrwphy/internal/report"
	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

func newDecodeCmd(opts *rootOptions) *cobra.Command {
	var (
		req      decoder.Request
		fCntHigh uint16
		verbose  bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "decode [hex...]",
		Short: "解码 PHYPayload",
		Long: `Decode a PHYPayload given as hex. Arguments are joined; with no
arguments one line is read from stdin. Bytes may be separated by '.', ','
or ':'.`,
		Example: `  lrwphy decode 40C1D25201A5050003070703120864FE226A9E
  lrwphy decode --appskey 2b7e151628aed2a6abf7158809cf4f3c 40.c1.d2.52.01.a5...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Hex = strings.Join(args, "")
			if req.Hex == "" {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				req.Hex = line
			}
			if req.Hex == "" {
				return decoder.ErrNoInput
			}
			if cmd.Flags().Changed("fcnt-high") {
				req.FCntHigh = &fCntHigh
			}
			req.Source = "cli"

			svc, err := newService(opts.cfg, nil)
			if err != nil {
				return err
			}

			res, decErr := svc.Decode(cmd.Context(), req)
			return printResult(cmd.OutOrStdout(), res, decErr, verbose || opts.cfg.Decoder.Verbose, asJSON)
		},
	}

	cmd.Flags().StringVar(&req.NwkSKey, "nwkskey", "", "NwkSKey (hex, 16 bytes), 默认取 LRW_NWKSKEY")
	cmd.Flags().StringVar(&req.AppSKey, "appskey", "", "AppSKey (hex, 16 bytes), 默认取 LRW_APPSKEY")
	cmd.Flags().StringVar(&req.AppKey, "appkey", "", "AppKey (hex, 16 bytes), 默认取 LRW_APPKEY")
	cmd.Flags().Uint16Var(&fCntHigh, "fcnt-high", 0, "帧计数器高 16 位")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "输出 MAC 命令说明")
	cmd.Flags().BoolVar(&asJSON, "json", false, "以 JSON 输出")

	return cmd
}

func readLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}

// printResult writes the report, or JSON, followed by the decode error
func printResult(w io.Writer, res *decoder.Result, decErr error, verbose, asJSON bool) error {
	if asJSON {
		var out interface{} = res
		if res == nil {
			out = map[string]string{
				"errorKind": lorawan.ErrorKind(decErr),
				"error":     decErr.Error(),
			}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	} else {
		if res != nil {
			if err := report.Render(w, res.Frame, report.Options{Verbose: verbose, Object: res.Object}); err != nil {
				return err
			}
			if res.ObjectError != "" {
				io.WriteString(w, "## Object error : "+res.ObjectError+"\n")
			}
		}
		if err := report.RenderError(w, decErr); err != nil {
			return err
		}
	}

	if decErr != nil {
		return errReported
	}
	return nil
}
