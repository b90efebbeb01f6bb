package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lorawan-server/lrwphy/pkg/lorawan"
)

func newJoinKeysCmd(opts *rootOptions) *cobra.Command {
	var (
		appKey, appNonce, netID, devNonce string
		bigEndian                         bool
	)

	cmd := &cobra.Command{
		Use:   "join-keys",
		Short: "由 AppKey 推导 LoRaWAN 1.0 会话密钥",
		Long: `Derive NwkSKey and AppSKey from an OTAA join (LoRaWAN 1.0.x).
AppNonce, NetID and DevNonce are taken in frame order unless --big-endian
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := lorawan.ParseAES128Key(appKey)
			if err != nil {
				return fmt.Errorf("appkey: %w", err)
			}

			var an, nid [3]byte
			var dn [2]byte
			for _, f := range []struct {
				name string
				in   string
				out  []byte
			}{
				{"appnonce", appNonce, an[:]},
				{"netid", netID, nid[:]},
				{"devnonce", devNonce, dn[:]},
			} {
				b, err := lorawan.ParseHex(f.in)
				if err != nil {
					return fmt.Errorf("%s: %w", f.name, err)
				}
				if len(b) != len(f.out) {
					return fmt.Errorf("%s: %w: %d bytes, expected %d", f.name, lorawan.ErrInvalidLength, len(b), len(f.out))
				}
				if bigEndian {
					for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
						b[i], b[j] = b[j], b[i]
					}
				}
				copy(f.out, b)
			}

			nwkSKey, appSKey, err := lorawan.DeriveSessionKeys10(key, an, nid, dn)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "NwkSKey: %s\n", nwkSKey)
			fmt.Fprintf(w, "AppSKey: %s\n", appSKey)
			return nil
		},
	}

	cmd.Flags().StringVar(&appKey, "appkey", "", "AppKey (hex, 16 bytes)")
	cmd.Flags().StringVar(&appNonce, "appnonce", "", "AppNonce (3 bytes)")
	cmd.Flags().StringVar(&netID, "netid", "", "NetID (3 bytes)")
	cmd.Flags().StringVar(&devNonce, "devnonce", "", "DevNonce (2 bytes)")
	cmd.Flags().BoolVar(&bigEndian, "big-endian", false, "输入高字节在前")
	for _, name := range []string{"appkey", "appnonce", "netid", "devnonce"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}
