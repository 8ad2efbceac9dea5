// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/TheThingsNetwork/lora-field-gateway/handler"
	"github.com/TheThingsNetwork/lora-field-gateway/radio"
	"github.com/spf13/cobra"
)

// HandlersCmd lists the available handlers
var HandlersCmd = &cobra.Command{
	Use:   "handlers",
	Short: "List the available handlers",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range handler.Names() {
			fmt.Println(name)
		}
	},
}

// ProfilesCmd lists the available radio profiles
var ProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the available radio profiles",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tBUS\tWIRING")
		for _, name := range radio.Profiles() {
			profile, err := radio.LookupProfile(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", profile.Name, profile.Bus, wiring(profile))
		}
		w.Flush()
	},
}

func wiring(p radio.Profile) string {
	if p.Bus == radio.UART {
		return fmt.Sprintf("port=%s baud=%d", p.Port, p.BaudRate)
	}
	return fmt.Sprintf("cs=%d cs-line=%s reset=%s dio0=%s", p.ChipSelect, line(p.ChipSelectLine), line(p.ResetLine), line(p.InterruptLine))
}

func line(l int) string {
	if l == radio.NotConnected {
		return "-"
	}
	return fmt.Sprint(l)
}

func init() {
	GatewayCmd.AddCommand(HandlersCmd)
	GatewayCmd.AddCommand(ProfilesCmd)
}
