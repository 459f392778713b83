package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spec-kit/support-desk/internal/secrets"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an age identity for SECRETS_AGE_IDENTITY",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		identity, err := secrets.GenerateIdentity()
		if err != nil {
			return err
		}
		fmt.Println(identity)
		return nil
	},
}
