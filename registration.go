package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"go-ac7/registration"
)

var (
	regVolumes  []string
	regModel    string
	regBankSize int
)

var registrationCmd = &cobra.Command{
	Use:   "registration <out.rbk>",
	Short: "Write a registration bank",
	Long: `Write a registration bank built from the basic registration. Each
--volumes flag gives the part volumes of one registration; registrations
without one keep the defaults.

Example:
  ac7 registration bank.rbk --volumes 127,80,80,80 --volumes 100,100`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(regVolumes) > regBankSize {
			return fmt.Errorf("%d --volumes flags for a bank of %d", len(regVolumes), regBankSize)
		}
		regs := make([][]byte, regBankSize)
		for i := range regs {
			regs[i] = registration.BasicRegistration()
			if i >= len(regVolumes) {
				continue
			}
			vols, err := parseVolumes(regVolumes[i])
			if err != nil {
				return fmt.Errorf("registration %d: %w", i+1, err)
			}
			if regs[i], err = registration.ChangeVolumes(regs[i], vols); err != nil {
				return fmt.Errorf("registration %d: %w", i+1, err)
			}
		}
		bank, err := registration.MakeBank(regModel, regBankSize, regs)
		if err != nil {
			return err
		}
		return saveToFile(args[0], bank)
	},
}

func init() {
	registrationCmd.Flags().StringArrayVar(&regVolumes, "volumes", nil, "comma-separated part volumes (0-127), once per registration")
	registrationCmd.Flags().StringVar(&regModel, "model", registration.DefaultModel, "model name written to the bank header")
	registrationCmd.Flags().IntVar(&regBankSize, "bank-size", 4, "registrations per bank: 4 (CT-X700/800) or 8 (CT-X3000/5000)")
}

func parseVolumes(s string) ([]uint8, error) {
	var out []uint8
	for _, f := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 127 {
			return nil, fmt.Errorf("volume %d is outside 0-127", v)
		}
		out = append(out, uint8(v))
	}
	return out, nil
}
