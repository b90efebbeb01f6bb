package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorawan-server/lrwphy/internal/decoder"
)

func newEncryptCmd(opts *rootOptions) *cobra.Command {
	req := decoder.EncryptRequest{}

	cmd := &cobra.Command{
		Use:   "encrypt <hex...>",
		Short: "FRMPayload 加解密",
		Long: `Run the FRMPayload cipher. Encryption and decryption are the same
operation. With --big-endian (default) devaddr and fcnt are given most
significant byte first; with --big-endian=false they are in frame order.`,
		Example: `  lrwphy encrypt --key 2b7e151628aed2a6abf7158809cf4f3c --devaddr 0000baad --fcnt 00000003 --dir down 7986`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Payload = strings.Join(args, "")

			svc, err := newService(opts.cfg, nil)
			if err != nil {
				return err
			}

			out, err := svc.Encrypt(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(out))
			return err
		},
	}

	cmd.Flags().StringVar(&req.Key, "key", "", "AES-128 密钥 (hex)")
	cmd.Flags().StringVar(&req.DevAddr, "devaddr", "", "DevAddr (4 bytes)")
	cmd.Flags().StringVar(&req.FCnt, "fcnt", "", "FCnt (4 bytes)")
	cmd.Flags().StringVar(&req.Direction, "dir", "up", "方向 up|down")
	cmd.Flags().BoolVar(&req.BigEndian, "big-endian", true, "devaddr/fcnt 高字节在前")
	cmd.MarkFlagRequired("key")
	cmd.MarkFlagRequired("devaddr")
	cmd.MarkFlagRequired("fcnt")

	return cmd
}
